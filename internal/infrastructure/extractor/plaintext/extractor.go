package plaintext

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor returns the body of text-like evidence as-is.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(contentType, filename string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".csv", ".log", ".eml":
		return true
	}
	return false
}

func (e *Extractor) Extract(_ context.Context, _, _ string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read source evidence: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("evidence body is not valid utf-8")
	}
	return strings.TrimSpace(string(raw)), nil
}
