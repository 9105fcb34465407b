package domain

import (
	"io"
	"time"
)

// UploadFile is one file of a batch upload.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadStatus string

const (
	UploadSucceeded UploadStatus = "uploaded"
	UploadFailed    UploadStatus = "failed"
)

// UploadOutcome reports what happened to one file of a batch.
type UploadOutcome struct {
	Filename string       `json:"filename"`
	Status   UploadStatus `json:"status"`
	ID       string       `json:"id,omitempty"`
	ObjectID string       `json:"objectId,omitempty"`
	Evidence *Evidence    `json:"evidence,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// UploadedEvent is published once a file reached the remote store.
type UploadedEvent struct {
	EventID    string    `json:"eventId"`
	VaultID    string    `json:"vaultId"`
	EvidenceID string    `json:"evidenceId"`
	Filename   string    `json:"filename"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ReconcileResult is the outcome of a successful classification run.
type ReconcileResult struct {
	Evidence       Evidence             `json:"evidence"`
	Classification Classification       `json:"classification"`
	Source         ClassificationSource `json:"source"`
}

// EvidenceDetail is a single record with an optional preview link for images.
type EvidenceDetail struct {
	Evidence   Evidence `json:"evidence"`
	PreviewURL string   `json:"previewUrl,omitempty"`
}
