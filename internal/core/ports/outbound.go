package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

// EvidenceRepository is the local evidence cache.
//
// Lookups by id only match the local id; callers that hold a remote object id
// resolve it through List (ID == RemoteObjectID once assigned). Get, Patch and
// Delete report domain.ErrEvidenceNotFound for unknown ids.
type EvidenceRepository interface {
	Put(ctx context.Context, vaultID string, rec domain.Evidence) error
	Patch(ctx context.Context, vaultID, id string, patch domain.EvidencePatch) (*domain.Evidence, error)
	Get(ctx context.Context, vaultID, id string) (*domain.Evidence, error)
	List(ctx context.Context, vaultID string) ([]domain.Evidence, error)
	Delete(ctx context.Context, vaultID, id string) error
	BulkPut(ctx context.Context, vaultID string, recs []domain.Evidence) error
	// MergeRemote folds a remote object listing into the stored records
	// atomically and reports how many records were added and updated.
	MergeRemote(ctx context.Context, vaultID string, objects []domain.RemoteObject) (added, updated int, err error)
	BulkTagEdit(ctx context.Context, vaultID string, ids, addTags, removeTags []string) (int, error)
}

// SnapshotStore durably persists the whole evidence cache at once.
type SnapshotStore interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, snapshot domain.Snapshot) error
}

// ObjectStore is the remote vault: uploads, ingestion state, extracted text, metadata.
type ObjectStore interface {
	ListVaults(ctx context.Context) ([]domain.Vault, error)
	CreateVault(ctx context.Context, name, description string) (*domain.Vault, error)

	CreateUpload(ctx context.Context, vaultID, filename, contentType string, size int64) (*domain.UploadTarget, error)
	UploadBytes(ctx context.Context, target domain.UploadTarget, contentType string, size int64, body io.Reader) error
	TriggerIngestion(ctx context.Context, vaultID, objectID string) error

	ListObjects(ctx context.Context, vaultID string) ([]domain.RemoteObject, error)
	GetObject(ctx context.Context, vaultID, objectID string) (*domain.RemoteObject, error)
	GetText(ctx context.Context, vaultID, objectID string) (string, error)
	DownloadURL(ctx context.Context, vaultID, objectID string) (string, error)
	Download(ctx context.Context, vaultID, objectID string) (io.ReadCloser, error)
	UpdateMetadata(ctx context.Context, vaultID, objectID string, metadata map[string]string) error
	DeleteObject(ctx context.Context, vaultID, objectID string) error
}

// OCRJobStatus is one observation of an asynchronous OCR job.
type OCRJobStatus struct {
	Done   bool
	Failed bool
	Text   string
	Error  string
}

// OCRService recognizes text in images reachable by URL.
type OCRService interface {
	Submit(ctx context.Context, documentURL string) (string, error)
	Status(ctx context.Context, jobID string) (OCRJobStatus, error)
}

// DocumentClassifier classifies evidence content.
type DocumentClassifier interface {
	Classify(ctx context.Context, input domain.ClassificationInput) (domain.Classification, error)
}

// SearchIndex is the remote semantic/hybrid search over a vault.
type SearchIndex interface {
	Search(ctx context.Context, vaultID, query string, topK int) ([]domain.SearchChunk, error)
}

// TextExtractor pulls text out of raw file bytes when the remote store cannot.
type TextExtractor interface {
	Supports(contentType, filename string) bool
	Extract(ctx context.Context, contentType, filename string, body io.Reader) (string, error)
}

// EventPublisher announces evidence lifecycle events.
type EventPublisher interface {
	PublishEvidenceUploaded(ctx context.Context, event domain.UploadedEvent) error
}

// EvidenceExporter renders records into a downloadable document.
type EvidenceExporter interface {
	ContentType() string
	Filename(vaultID string, now time.Time) string
	Export(w io.Writer, records []domain.Evidence) error
}
