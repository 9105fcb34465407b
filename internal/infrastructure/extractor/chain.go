package extractor

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

// Chain dispatches to the first extractor that supports a file.
type Chain struct {
	extractors []ports.TextExtractor
}

func NewChain(extractors ...ports.TextExtractor) *Chain {
	return &Chain{extractors: extractors}
}

func (c *Chain) Supports(contentType, filename string) bool {
	return c.pick(contentType, filename) != nil
}

func (c *Chain) Extract(ctx context.Context, contentType, filename string, body io.Reader) (string, error) {
	e := c.pick(contentType, filename)
	if e == nil {
		return "", fmt.Errorf("no extractor for %s (%s)", filename, contentType)
	}
	return e.Extract(ctx, contentType, filename, body)
}

func (c *Chain) pick(contentType, filename string) ports.TextExtractor {
	for _, e := range c.extractors {
		if e.Supports(contentType, filename) {
			return e
		}
	}
	return nil
}
