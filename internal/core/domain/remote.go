package domain

import "time"

type RemoteStatus string

const (
	RemotePending          RemoteStatus = "pending"
	RemoteProcessing       RemoteStatus = "processing"
	RemoteCompleted        RemoteStatus = "completed"
	RemoteFailed           RemoteStatus = "failed"
	RemoteExtractionFailed RemoteStatus = "extraction_failed"
)

func (s RemoteStatus) ExtractionFailed() bool {
	return s == RemoteFailed || s == RemoteExtractionFailed
}

// Vault is a remote collection of evidence objects.
type Vault struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RemoteObject is the object store's view of an uploaded file.
type RemoteObject struct {
	ID              string            `json:"id"`
	Filename        string            `json:"filename"`
	ContentType     string            `json:"contentType"`
	SizeBytes       int64             `json:"sizeBytes"`
	IngestionStatus RemoteStatus      `json:"ingestionStatus"`
	CreatedAt       time.Time         `json:"createdAt"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// UploadTarget is where the bytes of a new object must be sent.
type UploadTarget struct {
	ObjectID  string `json:"objectId"`
	UploadURL string `json:"uploadUrl"`
}

// LocalStatusFor translates a remote ingestion status into the local lifecycle.
// Remote completion only means text is ready; classification still has to run.
func LocalStatusFor(remote RemoteStatus) IngestionStatus {
	switch remote {
	case RemotePending:
		return IngestionPending
	case RemoteFailed, RemoteExtractionFailed:
		return IngestionFailed
	default:
		return IngestionProcessing
	}
}

// EvidenceFromRemote synthesizes a local record for an object only the remote store knows.
func EvidenceFromRemote(vaultID string, obj RemoteObject) Evidence {
	createdAt := obj.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	rec := NewPendingEvidence(vaultID, obj.ID, obj.Filename, obj.ContentType, obj.SizeBytes, createdAt)
	rec.IngestionStatus = LocalStatusFor(obj.IngestionStatus)
	return rec
}

// MergeRemoteObject reconciles a cached record with the remote store's object.
//
// A completed local record is authoritative: the remote list may lag behind
// classification, so neither status nor classification fields are touched.
// Immutable upload facts are only filled in when missing locally.
func MergeRemoteObject(local Evidence, obj RemoteObject, now time.Time) (Evidence, bool) {
	merged := local.Clone()
	changed := false

	if merged.RemoteObjectID == "" {
		merged.RemoteObjectID = obj.ID
		changed = true
	}
	if merged.Filename == "" && obj.Filename != "" {
		merged.Filename = obj.Filename
		changed = true
	}
	if merged.ContentType == "" && obj.ContentType != "" {
		merged.ContentType = obj.ContentType
		changed = true
	}
	if merged.SizeBytes == 0 && obj.SizeBytes > 0 {
		merged.SizeBytes = obj.SizeBytes
		changed = true
	}

	if merged.IsCompleted() {
		if changed {
			merged.UpdatedAt = now
		}
		return merged, changed
	}

	if next := LocalStatusFor(obj.IngestionStatus); next != merged.IngestionStatus {
		merged.IngestionStatus = next
		changed = true
	}
	if changed {
		merged.UpdatedAt = now
	}
	return merged, changed
}

// MergeRemoteListing folds a remote object list into the records currently
// held for a vault. It returns the records to write back and how many of them
// are new. Locals the listing does not mention are left alone.
func MergeRemoteListing(vaultID string, locals []Evidence, objects []RemoteObject, now time.Time) ([]Evidence, int) {
	byID := make(map[string]Evidence, len(locals)*2)
	for _, rec := range locals {
		byID[rec.ID] = rec
		if rec.RemoteObjectID != "" {
			byID[rec.RemoteObjectID] = rec
		}
	}

	changed := make([]Evidence, 0)
	added := 0
	for _, obj := range objects {
		if obj.ID == "" {
			continue
		}
		local, ok := byID[obj.ID]
		if !ok {
			rec := EvidenceFromRemote(vaultID, obj)
			changed = append(changed, rec)
			byID[obj.ID] = rec
			added++
			continue
		}
		if merged, didChange := MergeRemoteObject(local, obj, now); didChange {
			changed = append(changed, merged)
			byID[merged.ID] = merged
			if merged.RemoteObjectID != "" {
				byID[merged.RemoteObjectID] = merged
			}
		}
	}
	return changed, added
}
