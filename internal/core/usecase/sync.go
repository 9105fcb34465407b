package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

// SyncUseCase merges the remote object list into the local cache.
type SyncUseCase struct {
	repo   ports.EvidenceRepository
	store  ports.ObjectStore
	logger *slog.Logger
}

func NewSyncUseCase(repo ports.EvidenceRepository, store ports.ObjectStore, logger *slog.Logger) *SyncUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncUseCase{repo: repo, store: store, logger: logger}
}

// Sync returns how many records were added or changed. Local records the
// remote list does not mention are kept: fresh uploads may not be listed yet.
func (uc *SyncUseCase) Sync(ctx context.Context, vaultID string) (int, error) {
	objects, err := uc.store.ListObjects(ctx, vaultID)
	if err != nil {
		return 0, fmt.Errorf("list remote objects: %w", err)
	}
	added, updated, err := uc.repo.MergeRemote(ctx, vaultID, objects)
	if err != nil {
		return 0, fmt.Errorf("store synced evidence: %w", err)
	}
	uc.logger.Info("evidence_synced", "vault_id", vaultID, "remote_objects", len(objects), "added", added, "updated", updated)
	return added + updated, nil
}
