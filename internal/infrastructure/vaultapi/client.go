// Package vaultapi talks to the hosted evidence vault API: object storage and
// ingestion, OCR, LLM classification and hybrid search all live behind one
// base URL and one bearer key.
package vaultapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kirillkom/evidence-vault/internal/infrastructure/resilience"
)

const DefaultAPIKeyEnv = "VAULT_API_KEY"

type Options struct {
	// APIKeyEnv names the environment variable holding the bearer key. It is
	// read on every call so key rotation needs no restart.
	APIKeyEnv string
	// APIKey overrides the environment lookup (tests).
	APIKey func() string

	Model         string
	Timeout       time.Duration
	UploadTimeout time.Duration
	MaxTextBytes  int64

	Executor *resilience.Executor
}

type Client struct {
	baseURL      string
	apiKey       func() string
	apiKeyEnv    string
	model        string
	maxTextBytes int64

	httpClient     *http.Client
	transferClient *http.Client
	executor       *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	keyEnv := strings.TrimSpace(opts.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}
	apiKey := opts.APIKey
	if apiKey == nil {
		apiKey = func() string { return strings.TrimSpace(os.Getenv(keyEnv)) }
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 10 * time.Minute
	}
	maxText := opts.MaxTextBytes
	if maxText <= 0 {
		maxText = 4 << 20
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		apiKeyEnv:      keyEnv,
		model:          model,
		maxTextBytes:   maxText,
		httpClient:     &http.Client{Timeout: timeout},
		transferClient: &http.Client{Timeout: uploadTimeout},
		executor:       opts.Executor,
	}
}
