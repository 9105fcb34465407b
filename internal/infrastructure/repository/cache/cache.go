// Package cache is the local evidence cache: an in-memory index per vault
// that is written through to a snapshot store on every mutation.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

type Cache struct {
	store  ports.SnapshotStore
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records domain.Snapshot
}

// NewCache loads the persisted snapshot. A nil store keeps the cache memory-only.
func NewCache(ctx context.Context, store ports.SnapshotStore, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:   store,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		records: domain.Snapshot{},
	}
	if store == nil {
		return c, nil
	}
	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load evidence snapshot: %w", err)
	}
	for vaultID, records := range snapshot {
		bucket := make(map[string]domain.Evidence, len(records))
		for id, rec := range records {
			bucket[id] = rec.Clone()
		}
		c.records[vaultID] = bucket
	}
	logger.Info("evidence_cache_loaded", "records", c.records.Count(), "vaults", len(c.records))
	return c, nil
}

// Put inserts or replaces rec, keyed by its id.
func (c *Cache) Put(ctx context.Context, vaultID string, rec domain.Evidence) error {
	if rec.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "cache_put", fmt.Errorf("evidence id is required"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bucket(vaultID)[rec.ID] = c.stamp(vaultID, rec)
	c.persistLocked(ctx)
	return nil
}

// Patch overwrites the fields set in patch. A missing id reports
// ErrEvidenceNotFound and leaves the cache untouched.
func (c *Cache) Patch(ctx context.Context, vaultID, id string, patch domain.EvidencePatch) (*domain.Evidence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.records[vaultID]
	rec, ok := bucket[id]
	if !ok {
		return nil, notFound("cache_patch", vaultID, id)
	}
	rec = rec.Clone()
	if !patch.Apply(&rec) {
		out := bucket[id].Clone()
		return &out, nil
	}
	rec.UpdatedAt = c.now()
	bucket[id] = rec
	c.persistLocked(ctx)

	out := rec.Clone()
	return &out, nil
}

func (c *Cache) Get(_ context.Context, vaultID, id string) (*domain.Evidence, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[vaultID][id]
	if !ok {
		return nil, notFound("cache_get", vaultID, id)
	}
	out := rec.Clone()
	return &out, nil
}

// List returns the vault's records ordered by creation time, oldest first.
func (c *Cache) List(_ context.Context, vaultID string) ([]domain.Evidence, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bucket := c.records[vaultID]
	out := make([]domain.Evidence, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, rec.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (c *Cache) Delete(ctx context.Context, vaultID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.records[vaultID]
	if _, ok := bucket[id]; !ok {
		return notFound("cache_delete", vaultID, id)
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(c.records, vaultID)
	}
	c.persistLocked(ctx)
	return nil
}

// BulkPut upserts all records with a single durable write.
func (c *Cache) BulkPut(ctx context.Context, vaultID string, recs []domain.Evidence) error {
	if len(recs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.bucket(vaultID)
	for _, rec := range recs {
		if rec.ID == "" {
			continue
		}
		bucket[rec.ID] = c.stamp(vaultID, rec)
	}
	c.persistLocked(ctx)
	return nil
}

// MergeRemote merges the listing against the records held right now, so a
// classification that completed after the caller fetched the listing is kept.
func (c *Cache) MergeRemote(ctx context.Context, vaultID string, objects []domain.RemoteObject) (int, int, error) {
	if len(objects) == 0 {
		return 0, 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.bucket(vaultID)
	locals := make([]domain.Evidence, 0, len(bucket))
	for _, rec := range bucket {
		locals = append(locals, rec)
	}
	changed, added := domain.MergeRemoteListing(vaultID, locals, objects, c.now())
	if len(changed) == 0 {
		if len(bucket) == 0 {
			delete(c.records, vaultID)
		}
		return 0, 0, nil
	}
	for _, rec := range changed {
		bucket[rec.ID] = c.stamp(vaultID, rec)
	}
	c.persistLocked(ctx)
	return added, len(changed) - added, nil
}

// BulkTagEdit applies the same tag edit to every existing id and reports how
// many records were updated. Unknown ids are skipped.
func (c *Cache) BulkTagEdit(ctx context.Context, vaultID string, ids, addTags, removeTags []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.records[vaultID]
	now := c.now()
	updated := 0
	for _, id := range ids {
		rec, ok := bucket[id]
		if !ok {
			continue
		}
		rec = rec.Clone()
		rec.Tags = domain.EditTags(rec.Tags, addTags, removeTags)
		rec.UpdatedAt = now
		bucket[id] = rec
		updated++
	}
	if updated > 0 {
		c.persistLocked(ctx)
	}
	return updated, nil
}

func (c *Cache) bucket(vaultID string) map[string]domain.Evidence {
	bucket, ok := c.records[vaultID]
	if !ok {
		bucket = make(map[string]domain.Evidence)
		c.records[vaultID] = bucket
	}
	return bucket
}

func (c *Cache) stamp(vaultID string, rec domain.Evidence) domain.Evidence {
	out := rec.Clone()
	out.VaultID = vaultID
	out.Tags = domain.NormalizeTags(out.Tags)
	if out.Category == "" {
		out.Category = domain.CategoryOther
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = c.now()
	}
	return out
}

// persistLocked writes the full snapshot. Failures are logged, never returned:
// the in-memory state stays authoritative until the next successful write.
func (c *Cache) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	snapshot := make(domain.Snapshot, len(c.records))
	for vaultID, bucket := range c.records {
		copied := make(map[string]domain.Evidence, len(bucket))
		for id, rec := range bucket {
			copied[id] = rec.Clone()
		}
		snapshot[vaultID] = copied
	}
	if err := c.store.Save(ctx, snapshot); err != nil {
		c.logger.Error("evidence_snapshot_save_failed", "error", err, "records", snapshot.Count())
	}
}

func notFound(operation, vaultID, id string) error {
	return domain.WrapError(domain.ErrEvidenceNotFound, operation, fmt.Errorf("id %s in vault %s", id, vaultID))
}
