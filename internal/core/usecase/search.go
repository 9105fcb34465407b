package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

const (
	localScoreBase     = 30
	localScoreFilename = 30
	localScoreSummary  = 20
	localScoreTag      = 15
	defaultSearchTopK  = 10
)

// SearchUseCase ranks records for a free-text query: remote semantic search
// first, local substring scoring when the remote index has nothing usable.
type SearchUseCase struct {
	repo   ports.EvidenceRepository
	index  ports.SearchIndex
	logger *slog.Logger
}

// NewSearchUseCase wires search. index may be nil for local-only search.
func NewSearchUseCase(repo ports.EvidenceRepository, index ports.SearchIndex, logger *slog.Logger) *SearchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchUseCase{repo: repo, index: index, logger: logger}
}

func (uc *SearchUseCase) Search(ctx context.Context, vaultID, query string, topK int) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	if topK <= 0 {
		topK = defaultSearchTopK
	}

	records, err := uc.repo.List(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}

	if hits, ok := uc.semantic(ctx, vaultID, query, topK, records); ok {
		return &domain.SearchResult{Query: query, Mode: domain.SearchModeSemantic, Evidence: hits}, nil
	}
	return &domain.SearchResult{Query: query, Mode: domain.SearchModeLocal, Evidence: localSearch(records, query)}, nil
}

func (uc *SearchUseCase) semantic(ctx context.Context, vaultID, query string, topK int, records []domain.Evidence) ([]domain.ScoredEvidence, bool) {
	if uc.index == nil {
		return nil, false
	}
	chunks, err := uc.index.Search(ctx, vaultID, query, topK)
	if err != nil {
		uc.logger.Warn("semantic_search_failed", "vault_id", vaultID, "error", err)
		return nil, false
	}
	hits := mergeSemanticScores(records, chunks)
	return hits, len(hits) > 0
}

// mergeSemanticScores keeps the best chunk score per object, scales it to
// 0-100 and returns only known records, best first.
func mergeSemanticScores(records []domain.Evidence, chunks []domain.SearchChunk) []domain.ScoredEvidence {
	best := make(map[string]float64, len(chunks))
	for _, chunk := range chunks {
		if chunk.ObjectID == "" {
			continue
		}
		if current, ok := best[chunk.ObjectID]; !ok || chunk.Score > current {
			best[chunk.ObjectID] = chunk.Score
		}
	}

	out := make([]domain.ScoredEvidence, 0, len(best))
	for _, rec := range records {
		score, ok := best[rec.RemoteObjectID]
		if !ok {
			score, ok = best[rec.ID]
		}
		if !ok {
			continue
		}
		out = append(out, domain.ScoredEvidence{Evidence: rec, SearchRelevance: scaleScore(score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SearchRelevance > out[j].SearchRelevance })
	return out
}

// scaleScore maps a 0-1 similarity (or an already 0-100 score) onto 0-100.
func scaleScore(score float64) int {
	if score <= 1 {
		score *= 100
	}
	return domain.ClampRelevanceFloat(score)
}

func localSearch(records []domain.Evidence, query string) []domain.ScoredEvidence {
	lowered := strings.ToLower(query)
	out := make([]domain.ScoredEvidence, 0)
	for _, rec := range records {
		if !matchesText(rec, lowered) {
			continue
		}
		out = append(out, domain.ScoredEvidence{Evidence: rec, SearchRelevance: localScore(rec, lowered)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SearchRelevance > out[j].SearchRelevance })
	return out
}

func localScore(rec domain.Evidence, lowered string) int {
	score := localScoreBase
	if strings.Contains(strings.ToLower(rec.Filename), lowered) {
		score += localScoreFilename
	}
	if strings.Contains(strings.ToLower(rec.Summary), lowered) {
		score += localScoreSummary
	}
	if tagMatches(rec, lowered) {
		score += localScoreTag
	}
	return min(score, domain.MaxRelevance)
}
