package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

// EvidenceUseCase covers single-record reads, deletes and tag edits.
type EvidenceUseCase struct {
	repo       ports.EvidenceRepository
	store      ports.ObjectStore
	reconciler *ReconcileUseCase
	logger     *slog.Logger
}

func NewEvidenceUseCase(
	repo ports.EvidenceRepository,
	store ports.ObjectStore,
	reconciler *ReconcileUseCase,
	logger *slog.Logger,
) *EvidenceUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvidenceUseCase{repo: repo, store: store, reconciler: reconciler, logger: logger}
}

// Get returns the record, classifying it inline when the remote pipeline is
// done but the record is not. Images also get a preview URL when available.
func (uc *EvidenceUseCase) Get(ctx context.Context, vaultID, id string) (*domain.EvidenceDetail, error) {
	rec, err := resolveEvidence(ctx, uc.repo, uc.store, vaultID, id)
	if err != nil {
		return nil, err
	}

	if !rec.IsCompleted() && uc.readyForClassification(ctx, vaultID, rec) {
		rec = uc.classifyInline(ctx, vaultID, rec)
	}

	detail := &domain.EvidenceDetail{Evidence: rec}
	if rec.IsImage() {
		detail.PreviewURL = uc.bestEffortPreviewURL(ctx, vaultID, rec)
	}
	return detail, nil
}

func (uc *EvidenceUseCase) readyForClassification(ctx context.Context, vaultID string, rec domain.Evidence) bool {
	if uc.reconciler == nil {
		return false
	}
	if rec.IsImage() {
		return true
	}
	obj, err := uc.store.GetObject(ctx, vaultID, remoteID(rec))
	if err != nil {
		uc.logger.Warn("remote_status_unavailable", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
		return false
	}
	return obj.IngestionStatus == domain.RemoteCompleted
}

func (uc *EvidenceUseCase) classifyInline(ctx context.Context, vaultID string, rec domain.Evidence) domain.Evidence {
	result, err := uc.reconciler.Reconcile(ctx, vaultID, rec.ID)
	if err == nil {
		return result.Evidence
	}
	if !domain.IsKind(err, domain.ErrStillProcessing) {
		uc.logger.Warn("inline_classification_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
	}
	if fresh, getErr := uc.repo.Get(ctx, vaultID, rec.ID); getErr == nil {
		return *fresh
	}
	return rec
}

func (uc *EvidenceUseCase) bestEffortPreviewURL(ctx context.Context, vaultID string, rec domain.Evidence) string {
	previewURL, err := uc.store.DownloadURL(ctx, vaultID, remoteID(rec))
	if err != nil {
		uc.logger.Warn("preview_url_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
		return ""
	}
	return previewURL
}

// Delete removes the local record, then tries the remote object. The remote
// object may already be gone, so its failure only gets logged.
func (uc *EvidenceUseCase) Delete(ctx context.Context, vaultID, id string) error {
	rec, err := lookupLocal(ctx, uc.repo, vaultID, id)
	if err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, vaultID, rec.ID); err != nil {
		return fmt.Errorf("delete evidence: %w", err)
	}
	uc.bestEffortDeleteRemote(ctx, vaultID, rec)
	return nil
}

func (uc *EvidenceUseCase) bestEffortDeleteRemote(ctx context.Context, vaultID string, rec domain.Evidence) {
	if err := uc.store.DeleteObject(ctx, vaultID, remoteID(rec)); err != nil {
		uc.logger.Warn("remote_delete_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
	}
}

func (uc *EvidenceUseCase) ReplaceTags(ctx context.Context, vaultID, id string, tags []string) (*domain.Evidence, error) {
	if tags == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "replace tags", errors.New("tags must be an array"))
	}
	rec, err := lookupLocal(ctx, uc.repo, vaultID, id)
	if err != nil {
		return nil, err
	}
	return uc.patchTags(ctx, vaultID, rec.ID, tags)
}

func (uc *EvidenceUseCase) AddTag(ctx context.Context, vaultID, id, tag string) (*domain.Evidence, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add tag", errors.New("tag is required"))
	}
	rec, err := lookupLocal(ctx, uc.repo, vaultID, id)
	if err != nil {
		return nil, err
	}
	return uc.patchTags(ctx, vaultID, rec.ID, domain.EditTags(rec.Tags, []string{tag}, nil))
}

func (uc *EvidenceUseCase) RemoveTag(ctx context.Context, vaultID, id, tag string) (*domain.Evidence, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "remove tag", errors.New("tag is required"))
	}
	rec, err := lookupLocal(ctx, uc.repo, vaultID, id)
	if err != nil {
		return nil, err
	}
	return uc.patchTags(ctx, vaultID, rec.ID, domain.EditTags(rec.Tags, nil, []string{tag}))
}

// BulkEditTags accepts local or remote ids; unknown ids are skipped.
func (uc *EvidenceUseCase) BulkEditTags(ctx context.Context, vaultID string, ids, addTags, removeTags []string) (int, error) {
	if len(ids) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bulk edit tags", errors.New("ids are required"))
	}
	if len(addTags) == 0 && len(removeTags) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bulk edit tags", errors.New("addTags or removeTags is required"))
	}

	records, err := uc.repo.List(ctx, vaultID)
	if err != nil {
		return 0, fmt.Errorf("list evidence: %w", err)
	}
	localIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		for _, rec := range records {
			if rec.Matches(id) {
				localIDs = append(localIDs, rec.ID)
				break
			}
		}
	}

	updated, err := uc.repo.BulkTagEdit(ctx, vaultID, localIDs, addTags, removeTags)
	if err != nil {
		return 0, fmt.Errorf("bulk edit tags: %w", err)
	}
	return updated, nil
}

func (uc *EvidenceUseCase) patchTags(ctx context.Context, vaultID, id string, tags []string) (*domain.Evidence, error) {
	updated, err := uc.repo.Patch(ctx, vaultID, id, domain.EvidencePatch{Tags: tags, ReplaceTags: true})
	if err != nil {
		return nil, fmt.Errorf("update tags: %w", err)
	}
	return updated, nil
}
