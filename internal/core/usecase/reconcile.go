package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/resilience"
)

const (
	DefaultExtractedTextMaxChars = 5000
	minMeaningfulOCRChars        = 20
	filenameOnlyMaxConfidence    = 0.3
	metadataKeyPrefix            = "evidence_"
)

type ReconcileConfig struct {
	OCRPoll               resilience.PollPolicy
	SettlePoll            resilience.PollPolicy
	ExtractedTextMaxChars int
}

// ReconcileUseCase drives one record from upload to a classified state.
type ReconcileUseCase struct {
	repo       ports.EvidenceRepository
	store      ports.ObjectStore
	ocr        ports.OCRService
	classifier ports.DocumentClassifier
	fallback   ports.TextExtractor
	cfg        ReconcileConfig
	logger     *slog.Logger
}

// NewReconcileUseCase wires the reconciler. fallback may be nil.
func NewReconcileUseCase(
	repo ports.EvidenceRepository,
	store ports.ObjectStore,
	ocr ports.OCRService,
	classifier ports.DocumentClassifier,
	fallback ports.TextExtractor,
	cfg ReconcileConfig,
	logger *slog.Logger,
) *ReconcileUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.OCRPoll = cfg.OCRPoll.OrDefault(resilience.OCRPollPolicy())
	cfg.SettlePoll = cfg.SettlePoll.OrDefault(resilience.ClassifyRetryPolicy())
	if cfg.ExtractedTextMaxChars <= 0 {
		cfg.ExtractedTextMaxChars = DefaultExtractedTextMaxChars
	}
	return &ReconcileUseCase{
		repo:       repo,
		store:      store,
		ocr:        ocr,
		classifier: classifier,
		fallback:   fallback,
		cfg:        cfg,
		logger:     logger,
	}
}

// classificationInput is what will be classified and where it came from.
type classificationInput struct {
	text   string
	source domain.ClassificationSource
	// preset skips the classifier (images without readable text).
	preset *domain.Classification
}

// Reconcile runs one attempt. A record still moving through the remote
// pipeline yields a *domain.StillProcessingError; callers retry later.
func (uc *ReconcileUseCase) Reconcile(ctx context.Context, vaultID, id string) (*domain.ReconcileResult, error) {
	rec, err := uc.resolve(ctx, vaultID, id)
	if err != nil {
		return nil, err
	}
	objectID := remoteID(rec)

	remoteStatus, err := uc.remoteStatus(ctx, vaultID, rec)
	if err != nil {
		return nil, err
	}

	input, err := uc.prepareInput(ctx, vaultID, rec, remoteStatus)
	if err != nil {
		return nil, err
	}

	classification, err := uc.classify(ctx, vaultID, rec, input)
	if err != nil {
		return nil, err
	}

	updated, err := uc.persistClassification(ctx, vaultID, rec, classification, input)
	if err != nil {
		return nil, err
	}
	uc.bestEffortMirrorMetadata(ctx, vaultID, objectID, *updated)

	uc.logger.Info("evidence_classified",
		"vault_id", vaultID,
		"evidence_id", updated.ID,
		"category", updated.Category,
		"source", input.source,
		"relevance", updated.RelevanceScore,
	)
	return &domain.ReconcileResult{
		Evidence:       *updated,
		Classification: classification,
		Source:         input.source,
	}, nil
}

// ReconcileUntilSettled re-invokes Reconcile while the remote pipeline is busy.
// settled=false means the budget ran out and classification will complete in
// the background on a later attempt.
func (uc *ReconcileUseCase) ReconcileUntilSettled(ctx context.Context, vaultID, id string) (*domain.ReconcileResult, bool, error) {
	result, err := resilience.Poll(ctx, uc.cfg.SettlePoll, func(ctx context.Context, attempt int) (*domain.ReconcileResult, bool, error) {
		res, err := uc.Reconcile(ctx, vaultID, id)
		if domain.IsKind(err, domain.ErrStillProcessing) {
			uc.logger.Debug("evidence_still_processing", "vault_id", vaultID, "evidence_id", id, "attempt", attempt)
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	})
	if errors.Is(err, resilience.ErrPollExhausted) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// resolve finds the record by local id, then by remote object id, then from
// the remote object list. Records found only remotely are registered locally.
func (uc *ReconcileUseCase) resolve(ctx context.Context, vaultID, id string) (domain.Evidence, error) {
	return resolveEvidence(ctx, uc.repo, uc.store, vaultID, id)
}

func (uc *ReconcileUseCase) remoteStatus(ctx context.Context, vaultID string, rec domain.Evidence) (domain.RemoteStatus, error) {
	obj, err := uc.store.GetObject(ctx, vaultID, remoteID(rec))
	if err != nil {
		if rec.IsImage() {
			uc.logger.Warn("remote_status_unavailable", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
			return "", nil
		}
		return "", fmt.Errorf("query remote ingestion status: %w", err)
	}
	return obj.IngestionStatus, nil
}

func (uc *ReconcileUseCase) prepareInput(ctx context.Context, vaultID string, rec domain.Evidence, status domain.RemoteStatus) (classificationInput, error) {
	if rec.IsImage() {
		text := uc.recognizeImage(ctx, vaultID, rec)
		if meaningfulChars(text) < minMeaningfulOCRChars {
			photo := domain.PhotoClassification()
			return classificationInput{text: text, source: domain.SourceImage, preset: &photo}, nil
		}
		return classificationInput{text: text, source: domain.SourceOCR}, nil
	}

	switch {
	case status == domain.RemoteCompleted:
		return uc.fetchText(ctx, vaultID, rec), nil
	case status.ExtractionFailed():
		uc.logger.Warn("remote_extraction_failed", "vault_id", vaultID, "evidence_id", rec.ID, "status", status)
		return classificationInput{source: domain.SourceFilename}, nil
	case status == domain.RemotePending:
		uc.bestEffortNudgeIngestion(ctx, vaultID, rec)
		uc.markWaiting(ctx, vaultID, rec, domain.IngestionPending)
		return classificationInput{}, domain.NewStillProcessing(domain.RemotePending)
	default:
		uc.markWaiting(ctx, vaultID, rec, domain.IngestionProcessing)
		return classificationInput{}, domain.NewStillProcessing(domain.RemoteProcessing)
	}
}

// recognizeImage submits the image to OCR and waits for the job. Any failure,
// including an exhausted wait, yields empty text.
func (uc *ReconcileUseCase) recognizeImage(ctx context.Context, vaultID string, rec domain.Evidence) string {
	documentURL, err := uc.store.DownloadURL(ctx, vaultID, remoteID(rec))
	if err != nil {
		uc.logger.Warn("ocr_download_url_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
		return ""
	}
	jobID, err := uc.ocr.Submit(ctx, documentURL)
	if err != nil {
		uc.logger.Warn("ocr_submit_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
		return ""
	}

	status, err := resilience.Poll(ctx, uc.cfg.OCRPoll, func(ctx context.Context, _ int) (ports.OCRJobStatus, bool, error) {
		st, err := uc.ocr.Status(ctx, jobID)
		if err != nil {
			return st, false, err
		}
		return st, st.Done, nil
	})
	if err != nil {
		uc.logger.Warn("ocr_wait_failed", "vault_id", vaultID, "evidence_id", rec.ID, "job_id", jobID, "error", err)
		return ""
	}
	if status.Failed {
		uc.logger.Warn("ocr_job_failed", "vault_id", vaultID, "evidence_id", rec.ID, "job_id", jobID, "reason", status.Error)
		return ""
	}
	return status.Text
}

// fetchText asks the vault for extracted text, then tries local extraction of
// the original bytes, then settles for the filename.
func (uc *ReconcileUseCase) fetchText(ctx context.Context, vaultID string, rec domain.Evidence) classificationInput {
	text, err := uc.store.GetText(ctx, vaultID, remoteID(rec))
	if err == nil && strings.TrimSpace(text) != "" {
		return classificationInput{text: text, source: domain.SourceText}
	}
	if err != nil {
		uc.logger.Warn("extracted_text_fetch_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
	}

	if fallback := uc.extractLocally(ctx, vaultID, rec); strings.TrimSpace(fallback) != "" {
		return classificationInput{text: fallback, source: domain.SourceText}
	}
	return classificationInput{source: domain.SourceFilename}
}

func (uc *ReconcileUseCase) extractLocally(ctx context.Context, vaultID string, rec domain.Evidence) string {
	if uc.fallback == nil || !uc.fallback.Supports(rec.ContentType, rec.Filename) {
		return ""
	}
	body, err := uc.store.Download(ctx, vaultID, remoteID(rec))
	if err != nil {
		uc.logger.Warn("fallback_download_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
		return ""
	}
	defer body.Close()

	text, err := uc.fallback.Extract(ctx, rec.ContentType, rec.Filename, body)
	if err != nil {
		uc.logger.Warn("fallback_extract_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
		return ""
	}
	return text
}

func (uc *ReconcileUseCase) classify(ctx context.Context, vaultID string, rec domain.Evidence, input classificationInput) (domain.Classification, error) {
	if input.preset != nil {
		return *input.preset, nil
	}
	classification, err := uc.classifier.Classify(ctx, domain.ClassificationInput{
		Text:        input.text,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
	})
	if err != nil {
		uc.markFailed(ctx, vaultID, rec, err)
		return domain.Classification{}, fmt.Errorf("classify evidence: %w", err)
	}
	if input.source == domain.SourceFilename && classification.Confidence > filenameOnlyMaxConfidence {
		classification.Confidence = filenameOnlyMaxConfidence
	}
	return classification, nil
}

func (uc *ReconcileUseCase) persistClassification(
	ctx context.Context,
	vaultID string,
	rec domain.Evidence,
	classification domain.Classification,
	input classificationInput,
) (*domain.Evidence, error) {
	category := classification.Category
	relevance := classification.RelevanceScore
	confidence := classification.Confidence
	summary := classification.Summary
	date := classification.DateDetected
	text := domain.TruncateText(input.text, uc.cfg.ExtractedTextMaxChars)
	status := domain.IngestionCompleted
	source := input.source

	updated, err := uc.repo.Patch(ctx, vaultID, rec.ID, domain.EvidencePatch{
		Category:             &category,
		AddTags:              classification.Tags,
		RelevanceScore:       &relevance,
		Confidence:           &confidence,
		ExtractedText:        &text,
		Summary:              &summary,
		DateDetected:         &date,
		IngestionStatus:      &status,
		ClassificationSource: &source,
	})
	if err != nil {
		return nil, fmt.Errorf("save classification: %w", err)
	}
	return updated, nil
}

// markWaiting records the remote progress without ever regressing a completed record.
func (uc *ReconcileUseCase) markWaiting(ctx context.Context, vaultID string, rec domain.Evidence, status domain.IngestionStatus) {
	if rec.IsCompleted() || rec.IngestionStatus == status {
		return
	}
	if _, err := uc.repo.Patch(ctx, vaultID, rec.ID, domain.WaitingStatusPatch(status)); err != nil {
		uc.logger.Warn("evidence_status_update_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
	}
}

func (uc *ReconcileUseCase) markFailed(ctx context.Context, vaultID string, rec domain.Evidence, cause error) {
	uc.logger.Error("evidence_classification_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", cause)
	if rec.IsCompleted() {
		return
	}
	if _, err := uc.repo.Patch(ctx, vaultID, rec.ID, domain.WaitingStatusPatch(domain.IngestionFailed)); err != nil {
		uc.logger.Warn("evidence_status_update_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
	}
}

func (uc *ReconcileUseCase) bestEffortNudgeIngestion(ctx context.Context, vaultID string, rec domain.Evidence) {
	if err := uc.store.TriggerIngestion(ctx, vaultID, remoteID(rec)); err != nil {
		uc.logger.Warn("ingestion_nudge_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
	}
}

// bestEffortMirrorMetadata copies the classification onto the remote object.
// Keys are prefixed so they never collide with the store's own fields.
func (uc *ReconcileUseCase) bestEffortMirrorMetadata(ctx context.Context, vaultID, objectID string, rec domain.Evidence) {
	if err := uc.store.UpdateMetadata(ctx, vaultID, objectID, classificationMetadata(rec)); err != nil {
		uc.logger.Warn("metadata_mirror_failed", "vault_id", vaultID, "evidence_id", rec.ID, "error", err)
	}
}

func classificationMetadata(rec domain.Evidence) map[string]string {
	metadata := map[string]string{
		metadataKeyPrefix + "category":              string(rec.Category),
		metadataKeyPrefix + "tags":                  strings.Join(rec.Tags, ","),
		metadataKeyPrefix + "summary":               rec.Summary,
		metadataKeyPrefix + "relevance_score":       strconv.Itoa(rec.RelevanceScore),
		metadataKeyPrefix + "confidence":            strconv.FormatFloat(rec.Confidence, 'f', 2, 64),
		metadataKeyPrefix + "classification_source": string(rec.ClassificationSource),
		metadataKeyPrefix + "classified_at":         rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.DateDetected != "" {
		metadata[metadataKeyPrefix+"date_detected"] = rec.DateDetected
	}
	return metadata
}

func meaningfulChars(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func remoteID(rec domain.Evidence) string {
	if rec.RemoteObjectID != "" {
		return rec.RemoteObjectID
	}
	return rec.ID
}
