package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

// QueryUseCase serves filtered listings and search over the local cache.
type QueryUseCase struct {
	repo   ports.EvidenceRepository
	sync   *SyncUseCase
	search *SearchUseCase
	logger *slog.Logger
}

func NewQueryUseCase(repo ports.EvidenceRepository, sync *SyncUseCase, search *SearchUseCase, logger *slog.Logger) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{repo: repo, sync: sync, search: search, logger: logger}
}

// List optionally syncs with the remote store first. A failed sync is logged
// and the listing is served from the cache as it is.
func (uc *QueryUseCase) List(ctx context.Context, vaultID string, filter domain.EvidenceFilter, sync bool) (*domain.EvidenceListing, error) {
	if sync && uc.sync != nil {
		if _, err := uc.sync.Sync(ctx, vaultID); err != nil {
			uc.logger.Warn("evidence_sync_failed", "vault_id", vaultID, "error", err)
		}
	}

	records, err := uc.repo.List(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	matched := FilterEvidence(records, filter)
	return &domain.EvidenceListing{
		Evidence:       matched,
		Total:          len(matched),
		Tags:           tagVocabulary(records),
		CategoryCounts: categoryCounts(records),
	}, nil
}

func (uc *QueryUseCase) Search(ctx context.Context, vaultID, query string, topK int) (*domain.SearchResult, error) {
	return uc.search.Search(ctx, vaultID, query, topK)
}
