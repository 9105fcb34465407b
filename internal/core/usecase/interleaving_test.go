package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

// readHookRepo runs between once, after the caller's first read of local
// records and before the synced records are written back.
type readHookRepo struct {
	*repoFake
	between func()
}

func (r *readHookRepo) fire() {
	if hook := r.between; hook != nil {
		r.between = nil
		hook()
	}
}

func (r *readHookRepo) List(ctx context.Context, vaultID string) ([]domain.Evidence, error) {
	out, err := r.repoFake.List(ctx, vaultID)
	r.fire()
	return out, err
}

func (r *readHookRepo) MergeRemote(ctx context.Context, vaultID string, objects []domain.RemoteObject) (int, int, error) {
	r.fire()
	return r.repoFake.MergeRemote(ctx, vaultID, objects)
}

// getObjectHookStore runs afterGetObject once, after the object was read.
type getObjectHookStore struct {
	*objectStoreFake
	afterGetObject func()
}

func (s *getObjectHookStore) GetObject(ctx context.Context, vaultID, objectID string) (*domain.RemoteObject, error) {
	obj, err := s.objectStoreFake.GetObject(ctx, vaultID, objectID)
	if hook := s.afterGetObject; hook != nil {
		s.afterGetObject = nil
		hook()
	}
	return obj, err
}

func TestSyncKeepsClassificationCompletedDuringSync(t *testing.T) {
	rec := domain.NewPendingEvidence("case-1", "obj-1", "contract.pdf", "application/pdf", 4, time.Now())
	base := newRepoFake(rec)
	store := newObjectStoreFake()
	store.setStatus("obj-1", domain.RemoteCompleted)
	store.texts["obj-1"] = "This Agreement is entered into by and between..."
	reconciler := newReconciler(base, store, &ocrFake{}, &classifierFake{cls: contractClassification()})

	repo := &readHookRepo{repoFake: base, between: func() {
		if _, err := reconciler.Reconcile(context.Background(), "case-1", "obj-1"); err != nil {
			t.Errorf("Reconcile() error = %v", err)
		}
	}}
	if _, err := NewSyncUseCase(repo, store, discardLogger()).Sync(context.Background(), "case-1"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	got, _ := base.Get(context.Background(), "case-1", "obj-1")
	if got.IngestionStatus != domain.IngestionCompleted || got.Category != domain.CategoryContract || got.Summary == "" {
		t.Fatalf("sync overwrote a completed classification: %+v", got)
	}
}

func TestConcurrentReconcileNeverRegressesCompleted(t *testing.T) {
	rec := domain.NewPendingEvidence("case-1", "obj-1", "contract.pdf", "application/pdf", 4, time.Now())
	repo := newRepoFake(rec)
	base := newObjectStoreFake()
	base.setStatus("obj-1", domain.RemoteProcessing)
	other := newReconciler(repo, base, &ocrFake{}, &classifierFake{cls: contractClassification()})

	store := &getObjectHookStore{objectStoreFake: base, afterGetObject: func() {
		base.setStatus("obj-1", domain.RemoteCompleted)
		base.texts["obj-1"] = "This Agreement is entered into by and between..."
		if _, err := other.Reconcile(context.Background(), "case-1", "obj-1"); err != nil {
			t.Errorf("concurrent Reconcile() error = %v", err)
		}
	}}
	uc := NewReconcileUseCase(repo, store, &ocrFake{}, &classifierFake{cls: contractClassification()}, &extractorFake{}, fastReconcileConfig(), discardLogger())

	_, err := uc.Reconcile(context.Background(), "case-1", "obj-1")
	if _, ok := domain.StillProcessingStatus(err); !ok {
		t.Fatalf("expected still processing from the stale status read, got %v", err)
	}
	got, _ := repo.Get(context.Background(), "case-1", "obj-1")
	if got.IngestionStatus != domain.IngestionCompleted || got.Category != domain.CategoryContract {
		t.Fatalf("completed record regressed: %+v", got)
	}
}

func TestClassificationKeepsTagAddedDuringClassify(t *testing.T) {
	rec := domain.NewPendingEvidence("case-1", "obj-1", "contract.pdf", "application/pdf", 4, time.Now())
	repo := newRepoFake(rec)
	store := newObjectStoreFake()
	store.setStatus("obj-1", domain.RemoteCompleted)
	store.texts["obj-1"] = "This Agreement is entered into by and between..."
	classifier := &classifierFake{cls: contractClassification(), during: func() {
		if _, err := repo.BulkTagEdit(context.Background(), "case-1", []string{"obj-1"}, []string{"Smoking Gun"}, nil); err != nil {
			t.Errorf("BulkTagEdit() error = %v", err)
		}
	}}

	result, err := newReconciler(repo, store, &ocrFake{}, classifier).Reconcile(context.Background(), "case-1", "obj-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	want := []string{"Smoking Gun", "agreement", "signed"}
	got := result.Evidence.Tags
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags = %v, want %v", got, want)
		}
	}
}
