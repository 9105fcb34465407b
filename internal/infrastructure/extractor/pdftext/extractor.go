package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor pulls the text layer out of PDF evidence.
type Extractor struct {
	maxBytes int64
}

const DefaultMaxBytes = 50 << 20

func NewExtractor(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes}
}

func (e *Extractor) Supports(contentType, filename string) bool {
	if strings.EqualFold(strings.TrimSpace(strings.Split(contentType, ";")[0]), "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

func (e *Extractor) Extract(ctx context.Context, _, _ string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(body, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", fmt.Errorf("pdf exceeds %d bytes", e.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
