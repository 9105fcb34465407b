package vaultapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/resilience"
)

// call performs one authenticated JSON round trip through the resilience executor.
func (c *Client) call(ctx context.Context, method, path string, payload any, out any, operation string) error {
	if c.apiKey() == "" {
		return domain.WrapError(domain.ErrMissingAPIKey, operation, fmt.Errorf("environment variable %s is empty", c.apiKeyEnv))
	}

	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = raw
	}

	err := c.executeOp(ctx, operation, func(callCtx context.Context) error {
		return c.doJSON(callCtx, method, c.baseURL+path, body, out, operation)
	})
	return mapError(operation, err)
}

// singleShotOps create remote state; a retried 5xx could leave an orphan
// object, vault or OCR job behind, so they run once and only feed the breaker.
var singleShotOps = map[string]bool{
	"create_vault":      true,
	"create_upload":     true,
	"trigger_ingestion": true,
	"ocr_submit":        true,
}

func (c *Client) executeOp(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	classifier := classifyVaultError
	if singleShotOps[operation] {
		classifier = func(err error) resilience.ErrorClassification {
			class := classifyVaultError(err)
			class.Retryable = false
			return class
		}
	}
	return c.executor.Execute(ctx, "vaultapi."+operation, fn, classifier)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any, operation string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxTextBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "vault status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("vault %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("vault %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

// mapError attaches domain kinds so adapters can map remote failures to statuses.
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrMissingAPIKey) {
		return err
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound:
			return domain.WrapError(domain.ErrEvidenceNotFound, operation, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.WrapError(domain.ErrUnauthorized, operation, err)
		}
	}
	class := classifyVaultError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrRemote, operation, err)
}
