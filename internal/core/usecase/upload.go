package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

// UploadUseCase transfers files to the remote vault and registers them locally.
type UploadUseCase struct {
	repo   ports.EvidenceRepository
	store  ports.ObjectStore
	events ports.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewUploadUseCase wires the coordinator. events may be nil.
func NewUploadUseCase(
	repo ports.EvidenceRepository,
	store ports.ObjectStore,
	events ports.EventPublisher,
	logger *slog.Logger,
) *UploadUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadUseCase{
		repo:   repo,
		store:  store,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upload handles every file independently; one failure never aborts the batch.
func (uc *UploadUseCase) Upload(ctx context.Context, vaultID string, files []domain.UploadFile) []domain.UploadOutcome {
	outcomes := make([]domain.UploadOutcome, 0, len(files))
	for _, file := range files {
		filename := sanitizeFilename(file.Filename)
		rec, err := uc.uploadOne(ctx, vaultID, filename, file)
		if err != nil {
			uc.logger.Warn("evidence_upload_failed", "vault_id", vaultID, "filename", filename, "error", err)
			outcomes = append(outcomes, domain.UploadOutcome{
				Filename: filename,
				Status:   domain.UploadFailed,
				Error:    err.Error(),
			})
			continue
		}
		outcomes = append(outcomes, domain.UploadOutcome{
			Filename: filename,
			Status:   domain.UploadSucceeded,
			ID:       rec.ID,
			ObjectID: rec.RemoteObjectID,
			Evidence: &rec,
		})
	}
	return outcomes
}

func (uc *UploadUseCase) uploadOne(ctx context.Context, vaultID, filename string, file domain.UploadFile) (domain.Evidence, error) {
	if strings.TrimSpace(vaultID) == "" {
		return domain.Evidence{}, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("vault id is required"))
	}
	if file.Body == nil {
		return domain.Evidence{}, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file body is empty"))
	}
	contentType := detectContentType(file.ContentType, filename)

	target, err := uc.store.CreateUpload(ctx, vaultID, filename, contentType, file.Size)
	if err != nil {
		return domain.Evidence{}, fmt.Errorf("request upload target: %w", err)
	}
	if err := uc.store.UploadBytes(ctx, *target, contentType, file.Size, file.Body); err != nil {
		return domain.Evidence{}, fmt.Errorf("transfer file bytes: %w", err)
	}

	rec := domain.NewPendingEvidence(vaultID, target.ObjectID, filename, contentType, file.Size, uc.now())
	if uc.bestEffortTriggerIngestion(ctx, vaultID, target.ObjectID) {
		rec.IngestionStatus = domain.IngestionProcessing
	}

	if err := uc.repo.Put(ctx, vaultID, rec); err != nil {
		return domain.Evidence{}, fmt.Errorf("register evidence: %w", err)
	}
	uc.bestEffortPublishUploaded(ctx, rec)
	return rec, nil
}

// bestEffortTriggerIngestion never fails the upload; the reconciler nudges
// pending objects again later.
func (uc *UploadUseCase) bestEffortTriggerIngestion(ctx context.Context, vaultID, objectID string) bool {
	if err := uc.store.TriggerIngestion(ctx, vaultID, objectID); err != nil {
		uc.logger.Warn("ingestion_trigger_failed", "vault_id", vaultID, "object_id", objectID, "error", err)
		return false
	}
	return true
}

func (uc *UploadUseCase) bestEffortPublishUploaded(ctx context.Context, rec domain.Evidence) {
	if uc.events == nil {
		return
	}
	event := domain.UploadedEvent{
		EventID:    uuid.NewString(),
		VaultID:    rec.VaultID,
		EvidenceID: rec.ID,
		Filename:   rec.Filename,
		OccurredAt: uc.now(),
	}
	if err := uc.events.PublishEvidenceUploaded(ctx, event); err != nil {
		uc.logger.Warn("evidence_uploaded_publish_failed", "vault_id", rec.VaultID, "evidence_id", rec.ID, "error", err)
	}
}

func detectContentType(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
		return byExt
	}
	return "application/octet-stream"
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." || base == "/" {
		return "evidence.bin"
	}
	return base
}
