package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

// resolveEvidence accepts either identity of a record (ID == RemoteObjectID
// once assigned). When only the remote store knows the object a pending record
// is synthesized and registered.
func resolveEvidence(ctx context.Context, repo ports.EvidenceRepository, store ports.ObjectStore, vaultID, id string) (domain.Evidence, error) {
	if id == "" {
		return domain.Evidence{}, domain.WrapError(domain.ErrInvalidInput, "resolve evidence", fmt.Errorf("evidence id is required"))
	}

	rec, err := repo.Get(ctx, vaultID, id)
	if err == nil {
		return *rec, nil
	}
	if !domain.IsKind(err, domain.ErrEvidenceNotFound) {
		return domain.Evidence{}, fmt.Errorf("get evidence: %w", err)
	}

	local, ok, err := findLocal(ctx, repo, vaultID, id)
	if err != nil {
		return domain.Evidence{}, err
	}
	if ok {
		return local, nil
	}

	objects, err := store.ListObjects(ctx, vaultID)
	if err != nil {
		if domain.IsKind(err, domain.ErrEvidenceNotFound) {
			return domain.Evidence{}, domain.WrapError(domain.ErrEvidenceNotFound, "resolve evidence", fmt.Errorf("vault %s: %w", vaultID, err))
		}
		return domain.Evidence{}, fmt.Errorf("list remote objects: %w", err)
	}
	for _, obj := range objects {
		if obj.ID != id {
			continue
		}
		synthesized := domain.EvidenceFromRemote(vaultID, obj)
		if err := repo.Put(ctx, vaultID, synthesized); err != nil {
			return domain.Evidence{}, fmt.Errorf("register remote evidence: %w", err)
		}
		return synthesized, nil
	}
	return domain.Evidence{}, domain.WrapError(domain.ErrEvidenceNotFound, "resolve evidence", fmt.Errorf("id %s in vault %s", id, vaultID))
}

func findLocal(ctx context.Context, repo ports.EvidenceRepository, vaultID, id string) (domain.Evidence, bool, error) {
	records, err := repo.List(ctx, vaultID)
	if err != nil {
		return domain.Evidence{}, false, fmt.Errorf("list evidence: %w", err)
	}
	for _, rec := range records {
		if rec.Matches(id) {
			return rec, true, nil
		}
	}
	return domain.Evidence{}, false, nil
}

// lookupLocal resolves either identity against the cache only.
func lookupLocal(ctx context.Context, repo ports.EvidenceRepository, vaultID, id string) (domain.Evidence, error) {
	rec, err := repo.Get(ctx, vaultID, id)
	if err == nil {
		return *rec, nil
	}
	if !domain.IsKind(err, domain.ErrEvidenceNotFound) {
		return domain.Evidence{}, fmt.Errorf("get evidence: %w", err)
	}
	local, ok, err := findLocal(ctx, repo, vaultID, id)
	if err != nil {
		return domain.Evidence{}, err
	}
	if !ok {
		return domain.Evidence{}, domain.WrapError(domain.ErrEvidenceNotFound, "lookup evidence", fmt.Errorf("id %s in vault %s", id, vaultID))
	}
	return local, nil
}
