package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

func TestVaultCreateRequiresName(t *testing.T) {
	uc := NewVaultUseCase(newObjectStoreFake())
	_, err := uc.Create(context.Background(), "   ", "desc")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestVaultCreateTrimsAndLists(t *testing.T) {
	store := newObjectStoreFake()
	uc := NewVaultUseCase(store)

	vault, err := uc.Create(context.Background(), " Smith ", " divorce ")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if vault.Name != "Smith" || vault.Description != "divorce" {
		t.Fatalf("unexpected vault: %+v", vault)
	}
	vaults, err := uc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(vaults) != 1 || vaults[0].ID != vault.ID {
		t.Fatalf("unexpected vaults: %+v", vaults)
	}
}

func TestQueryListBuildsVocabularyOverWholeVault(t *testing.T) {
	a := domain.NewPendingEvidence("case-1", "obj-1", "a.pdf", "application/pdf", 1, time.Now())
	a.Tags = []string{"lease", "Smith"}
	a.Category = domain.CategoryContract
	b := domain.NewPendingEvidence("case-1", "obj-2", "b.eml", "message/rfc822", 1, time.Now())
	b.Tags = []string{"lease", "email"}
	b.Category = domain.CategoryEmail
	repo := newRepoFake(a, b)
	uc := NewQueryUseCase(repo, nil, NewSearchUseCase(repo, nil, discardLogger()), discardLogger())

	listing, err := uc.List(context.Background(), "case-1", domain.EvidenceFilter{Categories: []domain.Category{domain.CategoryEmail}}, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if listing.Total != 1 || listing.Evidence[0].ID != "obj-2" {
		t.Fatalf("unexpected filtered listing: %+v", listing.Evidence)
	}
	want := []string{"Smith", "email", "lease"}
	if len(listing.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", listing.Tags, want)
	}
	for i := range want {
		if listing.Tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", listing.Tags, want)
		}
	}
	if listing.CategoryCounts[domain.CategoryContract] != 1 || listing.CategoryCounts[domain.CategoryPhoto] != 0 {
		t.Fatalf("unexpected counts: %+v", listing.CategoryCounts)
	}
}
