package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/evidence-vault/internal/config"
	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

type uploaderFake struct {
	received []string
	bodies   []string
}

func (f *uploaderFake) Upload(_ context.Context, vaultID string, files []domain.UploadFile) []domain.UploadOutcome {
	out := make([]domain.UploadOutcome, 0, len(files))
	for i, file := range files {
		raw, _ := io.ReadAll(file.Body)
		f.received = append(f.received, file.Filename)
		f.bodies = append(f.bodies, string(raw))
		if len(raw) == 0 {
			out = append(out, domain.UploadOutcome{Filename: file.Filename, Status: domain.UploadFailed, Error: "empty file"})
			continue
		}
		id := fmt.Sprintf("obj-%d", i+1)
		rec := domain.NewPendingEvidence(vaultID, id, file.Filename, file.ContentType, int64(len(raw)), time.Unix(0, 0).UTC())
		rec.IngestionStatus = domain.IngestionProcessing
		out = append(out, domain.UploadOutcome{Filename: file.Filename, Status: domain.UploadSucceeded, ID: id, ObjectID: id, Evidence: &rec})
	}
	return out
}

type reconcilerFake struct {
	result *domain.ReconcileResult
	err    error
}

func (f *reconcilerFake) Reconcile(context.Context, string, string) (*domain.ReconcileResult, error) {
	return f.result, f.err
}

type queryFake struct {
	listing    *domain.EvidenceListing
	listErr    error
	lastFilter domain.EvidenceFilter
	lastSync   bool

	search    *domain.SearchResult
	searchErr error
	lastQuery string
	lastTopK  int
}

func (f *queryFake) List(_ context.Context, _ string, filter domain.EvidenceFilter, sync bool) (*domain.EvidenceListing, error) {
	f.lastFilter = filter
	f.lastSync = sync
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listing == nil {
		return &domain.EvidenceListing{Evidence: []domain.Evidence{}, Tags: []string{}, CategoryCounts: map[domain.Category]int{}}, nil
	}
	return f.listing, nil
}

func (f *queryFake) Search(_ context.Context, _ string, query string, topK int) (*domain.SearchResult, error) {
	f.lastQuery = query
	f.lastTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.search == nil {
		return &domain.SearchResult{Query: query, Mode: domain.SearchModeLocal}, nil
	}
	return f.search, nil
}

type evidenceFake struct {
	records map[string]domain.Evidence
	deleted []string
	bulk    []string
}

func newEvidenceFake(recs ...domain.Evidence) *evidenceFake {
	f := &evidenceFake{records: map[string]domain.Evidence{}}
	for _, r := range recs {
		f.records[r.ID] = r
	}
	return f
}

func (f *evidenceFake) lookup(id string) (domain.Evidence, error) {
	rec, ok := f.records[id]
	if !ok {
		return domain.Evidence{}, domain.WrapError(domain.ErrEvidenceNotFound, "lookup", errors.New("id="+id))
	}
	return rec, nil
}

func (f *evidenceFake) Get(_ context.Context, _ string, id string) (*domain.EvidenceDetail, error) {
	rec, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	detail := &domain.EvidenceDetail{Evidence: rec}
	if rec.IsImage() {
		detail.PreviewURL = "https://files.example/" + id
	}
	return detail, nil
}

func (f *evidenceFake) Delete(_ context.Context, _ string, id string) error {
	if _, err := f.lookup(id); err != nil {
		return err
	}
	delete(f.records, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *evidenceFake) edit(id string, fn func([]string) []string) (*domain.Evidence, error) {
	rec, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.Tags = domain.NormalizeTags(fn(rec.Tags))
	f.records[id] = rec
	return &rec, nil
}

func (f *evidenceFake) ReplaceTags(_ context.Context, _ string, id string, tags []string) (*domain.Evidence, error) {
	return f.edit(id, func([]string) []string { return tags })
}

func (f *evidenceFake) AddTag(_ context.Context, _ string, id, tag string) (*domain.Evidence, error) {
	return f.edit(id, func(cur []string) []string { return domain.EditTags(cur, []string{tag}, nil) })
}

func (f *evidenceFake) RemoveTag(_ context.Context, _ string, id, tag string) (*domain.Evidence, error) {
	return f.edit(id, func(cur []string) []string { return domain.EditTags(cur, nil, []string{tag}) })
}

func (f *evidenceFake) BulkEditTags(_ context.Context, _ string, ids, addTags, removeTags []string) (int, error) {
	if len(ids) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bulk edit tags", errors.New("ids are required"))
	}
	updated := 0
	for _, id := range ids {
		if _, err := f.edit(id, func(cur []string) []string { return domain.EditTags(cur, addTags, removeTags) }); err == nil {
			updated++
		}
	}
	f.bulk = append(f.bulk, ids...)
	return updated, nil
}

type vaultsFake struct {
	vaults []domain.Vault
	err    error
}

func (f *vaultsFake) List(context.Context) ([]domain.Vault, error) {
	return f.vaults, f.err
}

func (f *vaultsFake) Create(_ context.Context, name, description string) (*domain.Vault, error) {
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create vault", errors.New("name is required"))
	}
	v := domain.Vault{ID: "v-new", Name: name, Description: description}
	f.vaults = append(f.vaults, v)
	return &v, nil
}

type exporterFake struct {
	exported []domain.Evidence
}

func (f *exporterFake) ContentType() string { return "text/csv" }

func (f *exporterFake) Filename(vaultID string, _ time.Time) string { return vaultID + ".csv" }

func (f *exporterFake) Export(w io.Writer, records []domain.Evidence) error {
	f.exported = records
	for _, r := range records {
		if _, err := io.WriteString(w, r.Filename+"\n"); err != nil {
			return err
		}
	}
	return nil
}

type testDeps struct {
	uploader   *uploaderFake
	reconciler *reconcilerFake
	query      *queryFake
	evidence   *evidenceFake
	vaults     *vaultsFake
	exporter   *exporterFake
}

func newTestDeps() *testDeps {
	return &testDeps{
		uploader:   &uploaderFake{},
		reconciler: &reconcilerFake{},
		query:      &queryFake{},
		evidence:   newEvidenceFake(),
		vaults:     &vaultsFake{},
		exporter:   &exporterFake{},
	}
}

func (d *testDeps) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, Services{
		Uploader:   d.uploader,
		Reconciler: d.reconciler,
		Query:      d.query,
		Evidence:   d.evidence,
		Vaults:     d.vaults,
		Exporter:   d.exporter,
	}, nil, nil).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestDeps().handler(cfg)
}
