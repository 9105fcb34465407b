package vaultapi

import (
	"context"
	"net/http"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

// SearchIndex implements ports.SearchIndex with the vault's hybrid search.
type SearchIndex struct {
	client *Client
}

func NewSearchIndex(client *Client) *SearchIndex {
	return &SearchIndex{client: client}
}

func (s *SearchIndex) Search(ctx context.Context, vaultID, query string, topK int) ([]domain.SearchChunk, error) {
	if topK <= 0 {
		topK = 10
	}
	request := map[string]any{
		"query":  query,
		"topK":   topK,
		"method": "hybrid",
	}
	var response struct {
		Chunks []domain.SearchChunk `json:"chunks"`
	}
	if err := s.client.call(ctx, http.MethodPost, vaultPath(vaultID, "search"), request, &response, "search"); err != nil {
		return nil, err
	}
	return response.Chunks, nil
}
