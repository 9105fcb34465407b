package domain

import (
	"path"
	"strings"
	"time"
)

type Category string

const (
	CategoryContract          Category = "contract"
	CategoryEmail             Category = "email"
	CategoryPhoto             Category = "photo"
	CategoryHandwrittenNote   Category = "handwritten_note"
	CategoryMedicalRecord     Category = "medical_record"
	CategoryFinancialDocument Category = "financial_document"
	CategoryLegalFiling       Category = "legal_filing"
	CategoryCorrespondence    Category = "correspondence"
	CategoryReport            Category = "report"
	CategoryOther             Category = "other"
)

var Categories = []Category{
	CategoryContract,
	CategoryEmail,
	CategoryPhoto,
	CategoryHandwrittenNote,
	CategoryMedicalRecord,
	CategoryFinancialDocument,
	CategoryLegalFiling,
	CategoryCorrespondence,
	CategoryReport,
	CategoryOther,
}

// ParseCategory maps free-form classifier output onto the fixed taxonomy.
// Unknown values become CategoryOther.
func ParseCategory(raw string) Category {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	for _, c := range Categories {
		if string(c) == normalized {
			return c
		}
	}
	return CategoryOther
}

type IngestionStatus string

const (
	IngestionPending    IngestionStatus = "pending"
	IngestionProcessing IngestionStatus = "processing"
	IngestionCompleted  IngestionStatus = "completed"
	IngestionFailed     IngestionStatus = "failed"
)

type ClassificationSource string

const (
	SourceText     ClassificationSource = "text"
	SourceOCR      ClassificationSource = "ocr"
	SourceFilename ClassificationSource = "filename"
	SourceImage    ClassificationSource = "image"
)

// Evidence is one uploaded file tracked by the local cache.
//
// ID equals RemoteObjectID once the remote store has assigned an object id;
// lookups throughout the service accept either value (see Matches).
type Evidence struct {
	ID                   string               `json:"id"`
	VaultID              string               `json:"vaultId"`
	RemoteObjectID       string               `json:"remoteObjectId"`
	Filename             string               `json:"filename"`
	ContentType          string               `json:"contentType"`
	SizeBytes            int64                `json:"sizeBytes"`
	Category             Category             `json:"category"`
	Tags                 []string             `json:"tags"`
	RelevanceScore       int                  `json:"relevanceScore"`
	Confidence           float64              `json:"confidence,omitempty"`
	ExtractedText        string               `json:"extractedText,omitempty"`
	Summary              string               `json:"summary,omitempty"`
	DateDetected         string               `json:"dateDetected,omitempty"`
	IngestionStatus      IngestionStatus      `json:"ingestionStatus"`
	ClassificationSource ClassificationSource `json:"classificationSource,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// NewPendingEvidence builds the record registered before any remote processing happened.
func NewPendingEvidence(vaultID, objectID, filename, contentType string, size int64, createdAt time.Time) Evidence {
	return Evidence{
		ID:              objectID,
		VaultID:         vaultID,
		RemoteObjectID:  objectID,
		Filename:        filename,
		ContentType:     contentType,
		SizeBytes:       size,
		Category:        CategoryOther,
		Tags:            []string{},
		IngestionStatus: IngestionPending,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

// Matches reports whether id refers to this record by local or remote identity.
func (e Evidence) Matches(id string) bool {
	if id == "" {
		return false
	}
	return e.ID == id || e.RemoteObjectID == id
}

func (e Evidence) IsCompleted() bool {
	return e.IngestionStatus == IngestionCompleted
}

func (e Evidence) IsImage() bool {
	return IsImage(e.ContentType, e.Filename)
}

// EffectiveDate is the ISO date used for range filters: the detected date when
// known, otherwise the upload date.
func (e Evidence) EffectiveDate() string {
	if d := strings.TrimSpace(e.DateDetected); d != "" {
		if len(d) > 10 {
			return d[:10]
		}
		return d
	}
	return e.CreatedAt.UTC().Format(time.DateOnly)
}

// SortDate is a zero-padded ISO string so lexicographic order equals time order.
func (e Evidence) SortDate() string {
	if d := strings.TrimSpace(e.DateDetected); d != "" {
		return d
	}
	return e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z")
}

func (e Evidence) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with the receiver.
func (e Evidence) Clone() Evidence {
	out := e
	out.Tags = append([]string(nil), e.Tags...)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true, ".heic": true,
}

func IsImage(contentType, filename string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(filename))]
}

// EvidencePatch is a shallow overwrite of the mutable fields. Nil fields are left untouched.
// Repositories apply it against the record they currently hold, under their own lock.
type EvidencePatch struct {
	RemoteObjectID       *string
	Category             *Category
	Tags                 []string
	ReplaceTags          bool
	AddTags              []string
	RelevanceScore       *int
	Confidence           *float64
	ExtractedText        *string
	Summary              *string
	DateDetected         *string
	IngestionStatus      *IngestionStatus
	ClassificationSource *ClassificationSource

	// OnlyIfNotCompleted drops the whole patch when the stored record is completed.
	OnlyIfNotCompleted bool
}

// Apply mutates e and reports whether the patch was applied.
func (p EvidencePatch) Apply(e *Evidence) bool {
	if p.OnlyIfNotCompleted && e.IsCompleted() {
		return false
	}
	if p.RemoteObjectID != nil {
		e.RemoteObjectID = *p.RemoteObjectID
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.ReplaceTags {
		e.Tags = NormalizeTags(p.Tags)
	}
	if len(p.AddTags) > 0 {
		e.Tags = MergeTags(e.Tags, p.AddTags)
	}
	if p.RelevanceScore != nil {
		e.RelevanceScore = ClampRelevance(*p.RelevanceScore)
	}
	if p.Confidence != nil {
		e.Confidence = *p.Confidence
	}
	if p.ExtractedText != nil {
		e.ExtractedText = *p.ExtractedText
	}
	if p.Summary != nil {
		e.Summary = *p.Summary
	}
	if p.DateDetected != nil {
		e.DateDetected = *p.DateDetected
	}
	if p.IngestionStatus != nil {
		e.IngestionStatus = *p.IngestionStatus
	}
	if p.ClassificationSource != nil {
		e.ClassificationSource = *p.ClassificationSource
	}
	return true
}

// StatusPatch builds a patch that only touches the ingestion status.
func StatusPatch(status IngestionStatus) EvidencePatch {
	return EvidencePatch{IngestionStatus: &status}
}

// WaitingStatusPatch moves a record along the waiting states and never
// touches one that has completed in the meantime.
func WaitingStatusPatch(status IngestionStatus) EvidencePatch {
	patch := StatusPatch(status)
	patch.OnlyIfNotCompleted = true
	return patch
}

// Snapshot is the whole cache as persisted: vault id -> record id -> record.
type Snapshot map[string]map[string]Evidence

func (s Snapshot) Count() int {
	n := 0
	for _, records := range s {
		n += len(records)
	}
	return n
}

// TruncateText keeps at most maxRunes runes of text.
func TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
