package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/resilience"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type repoFake struct {
	mu      sync.Mutex
	records map[string]map[string]domain.Evidence
	puts    int
	patches int
}

func newRepoFake(recs ...domain.Evidence) *repoFake {
	f := &repoFake{records: map[string]map[string]domain.Evidence{}}
	for _, rec := range recs {
		f.bucket(rec.VaultID)[rec.ID] = rec.Clone()
	}
	return f
}

func (f *repoFake) bucket(vaultID string) map[string]domain.Evidence {
	if f.records[vaultID] == nil {
		f.records[vaultID] = map[string]domain.Evidence{}
	}
	return f.records[vaultID]
}

func (f *repoFake) notFound(id string) error {
	return domain.WrapError(domain.ErrEvidenceNotFound, "fake", fmt.Errorf("id %s", id))
}

func (f *repoFake) Put(_ context.Context, vaultID string, rec domain.Evidence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	rec = rec.Clone()
	rec.VaultID = vaultID
	f.bucket(vaultID)[rec.ID] = rec
	return nil
}

func (f *repoFake) Patch(_ context.Context, vaultID, id string, patch domain.EvidencePatch) (*domain.Evidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[vaultID][id]
	if !ok {
		return nil, f.notFound(id)
	}
	f.patches++
	rec = rec.Clone()
	if !patch.Apply(&rec) {
		out := f.records[vaultID][id].Clone()
		return &out, nil
	}
	f.records[vaultID][id] = rec
	out := rec.Clone()
	return &out, nil
}

func (f *repoFake) Get(_ context.Context, vaultID, id string) (*domain.Evidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[vaultID][id]
	if !ok {
		return nil, f.notFound(id)
	}
	out := rec.Clone()
	return &out, nil
}

func (f *repoFake) List(_ context.Context, vaultID string) ([]domain.Evidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Evidence, 0, len(f.records[vaultID]))
	for _, rec := range f.records[vaultID] {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *repoFake) Delete(_ context.Context, vaultID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[vaultID][id]; !ok {
		return f.notFound(id)
	}
	delete(f.records[vaultID], id)
	return nil
}

func (f *repoFake) BulkPut(_ context.Context, vaultID string, recs []domain.Evidence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range recs {
		rec = rec.Clone()
		rec.VaultID = vaultID
		f.bucket(vaultID)[rec.ID] = rec
	}
	return nil
}

func (f *repoFake) MergeRemote(_ context.Context, vaultID string, objects []domain.RemoteObject) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.bucket(vaultID)
	locals := make([]domain.Evidence, 0, len(bucket))
	for _, rec := range bucket {
		locals = append(locals, rec.Clone())
	}
	changed, added := domain.MergeRemoteListing(vaultID, locals, objects, time.Now().UTC())
	for _, rec := range changed {
		rec.VaultID = vaultID
		bucket[rec.ID] = rec
	}
	return added, len(changed) - added, nil
}

func (f *repoFake) BulkTagEdit(_ context.Context, vaultID string, ids, addTags, removeTags []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	updated := 0
	for _, id := range ids {
		rec, ok := f.records[vaultID][id]
		if !ok {
			continue
		}
		rec.Tags = domain.EditTags(rec.Tags, addTags, removeTags)
		f.records[vaultID][id] = rec
		updated++
	}
	return updated, nil
}

type objectStoreFake struct {
	mu sync.Mutex

	vaults  []domain.Vault
	objects map[string]domain.RemoteObject
	texts   map[string]string
	files   map[string][]byte

	nextID         int
	uploadFailFor  map[string]bool
	triggerErr     error
	listErr        error
	getErr         error
	textErr        error
	downloadURLErr error
	metadataErr    error
	deleteErr      error

	uploaded  map[string][]byte
	triggered []string
	metadata  map[string]map[string]string
	deleted   []string
}

func newObjectStoreFake() *objectStoreFake {
	return &objectStoreFake{
		objects:       map[string]domain.RemoteObject{},
		texts:         map[string]string{},
		files:         map[string][]byte{},
		uploadFailFor: map[string]bool{},
		uploaded:      map[string][]byte{},
		metadata:      map[string]map[string]string{},
	}
}

func (f *objectStoreFake) setStatus(objectID string, status domain.RemoteStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := f.objects[objectID]
	obj.ID = objectID
	obj.IngestionStatus = status
	f.objects[objectID] = obj
}

func (f *objectStoreFake) ListVaults(context.Context) ([]domain.Vault, error) {
	return f.vaults, f.listErr
}

func (f *objectStoreFake) CreateVault(_ context.Context, name, description string) (*domain.Vault, error) {
	vault := domain.Vault{ID: "vault-" + strings.ToLower(name), Name: name, Description: description}
	f.vaults = append(f.vaults, vault)
	return &vault, nil
}

func (f *objectStoreFake) CreateUpload(_ context.Context, _ string, filename, contentType string, size int64) (*domain.UploadTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadFailFor[filename] {
		return nil, domain.WrapError(domain.ErrRemote, "create_upload", errors.New("quota exceeded"))
	}
	f.nextID++
	id := fmt.Sprintf("obj-%d", f.nextID)
	f.objects[id] = domain.RemoteObject{ID: id, Filename: filename, ContentType: contentType, SizeBytes: size, IngestionStatus: domain.RemotePending}
	return &domain.UploadTarget{ObjectID: id, UploadURL: "https://upload.example/" + id}, nil
}

func (f *objectStoreFake) UploadBytes(_ context.Context, target domain.UploadTarget, _ string, _ int64, body io.Reader) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[target.ObjectID] = raw
	return nil
}

func (f *objectStoreFake) TriggerIngestion(_ context.Context, _ string, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, objectID)
	if f.triggerErr != nil {
		return f.triggerErr
	}
	obj := f.objects[objectID]
	if obj.IngestionStatus == domain.RemotePending {
		obj.IngestionStatus = domain.RemoteProcessing
		f.objects[objectID] = obj
	}
	return nil
}

func (f *objectStoreFake) ListObjects(context.Context, string) ([]domain.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.RemoteObject, 0, len(f.objects))
	for _, obj := range f.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *objectStoreFake) GetObject(_ context.Context, _ string, objectID string) (*domain.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	obj, ok := f.objects[objectID]
	if !ok {
		return nil, domain.WrapError(domain.ErrEvidenceNotFound, "get_object", errors.New(objectID))
	}
	return &obj, nil
}

func (f *objectStoreFake) GetText(_ context.Context, _ string, objectID string) (string, error) {
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.texts[objectID], nil
}

func (f *objectStoreFake) DownloadURL(_ context.Context, _ string, objectID string) (string, error) {
	if f.downloadURLErr != nil {
		return "", f.downloadURLErr
	}
	return "https://files.example/" + objectID, nil
}

func (f *objectStoreFake) Download(_ context.Context, _ string, objectID string) (io.ReadCloser, error) {
	raw, ok := f.files[objectID]
	if !ok {
		return nil, domain.WrapError(domain.ErrEvidenceNotFound, "download", errors.New(objectID))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *objectStoreFake) UpdateMetadata(_ context.Context, _ string, objectID string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[objectID] = metadata
	return f.metadataErr
}

func (f *objectStoreFake) DeleteObject(_ context.Context, _ string, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectID)
	return f.deleteErr
}

type ocrFake struct {
	submitErr error
	statuses  []ports.OCRJobStatus
	polls     int
	submitted []string
}

func (f *ocrFake) Submit(_ context.Context, documentURL string) (string, error) {
	f.submitted = append(f.submitted, documentURL)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-1", nil
}

func (f *ocrFake) Status(context.Context, string) (ports.OCRJobStatus, error) {
	f.polls++
	if len(f.statuses) == 0 {
		return ports.OCRJobStatus{}, nil
	}
	idx := min(f.polls-1, len(f.statuses)-1)
	return f.statuses[idx], nil
}

type classifierFake struct {
	cls    domain.Classification
	err    error
	calls  int
	inputs []domain.ClassificationInput
	// during runs inside the classifier call, once.
	during func()
}

func (f *classifierFake) Classify(_ context.Context, input domain.ClassificationInput) (domain.Classification, error) {
	f.calls++
	f.inputs = append(f.inputs, input)
	if hook := f.during; hook != nil {
		f.during = nil
		hook()
	}
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.cls, nil
}

type searchIndexFake struct {
	chunks []domain.SearchChunk
	err    error
}

func (f *searchIndexFake) Search(context.Context, string, string, int) ([]domain.SearchChunk, error) {
	return f.chunks, f.err
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Supports(contentType, _ string) bool {
	return contentType == "application/pdf"
}

func (f *extractorFake) Extract(_ context.Context, _, _ string, body io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, body)
	return f.text, f.err
}

type eventsFake struct {
	events []domain.UploadedEvent
	err    error
}

func (f *eventsFake) PublishEvidenceUploaded(_ context.Context, event domain.UploadedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func fastReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		OCRPoll:    resilience.PollPolicy{Interval: time.Millisecond, MaxAttempts: 3},
		SettlePoll: resilience.PollPolicy{Interval: time.Millisecond, MaxAttempts: 3},
	}
}

func contractClassification() domain.Classification {
	return domain.Classification{
		Category:       domain.CategoryContract,
		Confidence:     0.91,
		Tags:           []string{"agreement", "signed"},
		Summary:        "Services agreement between the parties.",
		DateDetected:   "2023-02-14",
		RelevanceScore: 80,
	}
}
