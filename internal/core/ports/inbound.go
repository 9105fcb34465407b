package ports

import (
	"context"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

// EvidenceUploader is the inbound contract for batch uploads.
type EvidenceUploader interface {
	Upload(ctx context.Context, vaultID string, files []domain.UploadFile) []domain.UploadOutcome
}

// EvidenceReconciler drives one record through remote processing and classification.
type EvidenceReconciler interface {
	Reconcile(ctx context.Context, vaultID, id string) (*domain.ReconcileResult, error)
}

// EvidenceQueryService lists and searches the local cache.
type EvidenceQueryService interface {
	List(ctx context.Context, vaultID string, filter domain.EvidenceFilter, sync bool) (*domain.EvidenceListing, error)
	Search(ctx context.Context, vaultID, query string, topK int) (*domain.SearchResult, error)
}

// EvidenceService covers single-record reads and edits.
type EvidenceService interface {
	Get(ctx context.Context, vaultID, id string) (*domain.EvidenceDetail, error)
	Delete(ctx context.Context, vaultID, id string) error
	ReplaceTags(ctx context.Context, vaultID, id string, tags []string) (*domain.Evidence, error)
	AddTag(ctx context.Context, vaultID, id, tag string) (*domain.Evidence, error)
	RemoveTag(ctx context.Context, vaultID, id, tag string) (*domain.Evidence, error)
	BulkEditTags(ctx context.Context, vaultID string, ids, addTags, removeTags []string) (int, error)
}

// VaultService lists and creates remote collections.
type VaultService interface {
	List(ctx context.Context) ([]domain.Vault, error)
	Create(ctx context.Context, name, description string) (*domain.Vault, error)
}
