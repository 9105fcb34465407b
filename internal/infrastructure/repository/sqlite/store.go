// Package sqlite persists evidence cache snapshots in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "./data/evidence.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; the cache already serializes saves.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS evidence_records (
	vault_id TEXT NOT NULL,
	id TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (vault_id, id)
);
`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT vault_id, id, payload FROM evidence_records`)
	if err != nil {
		return nil, fmt.Errorf("query evidence records: %w", err)
	}
	defer rows.Close()

	snapshot := domain.Snapshot{}
	for rows.Next() {
		var vaultID, id, payload string
		if err := rows.Scan(&vaultID, &id, &payload); err != nil {
			return nil, fmt.Errorf("scan evidence record: %w", err)
		}
		var rec domain.Evidence
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal evidence %s/%s: %w", vaultID, id, err)
		}
		if snapshot[vaultID] == nil {
			snapshot[vaultID] = map[string]domain.Evidence{}
		}
		snapshot[vaultID][id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence records: %w", err)
	}
	return snapshot, nil
}

// Save replaces the table contents with snapshot in one transaction.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM evidence_records`); err != nil {
		return fmt.Errorf("clear evidence records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO evidence_records (vault_id, id, payload, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for vaultID, records := range snapshot {
		for id, rec := range records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal evidence %s/%s: %w", vaultID, id, err)
			}
			if _, err := stmt.ExecContext(ctx, vaultID, id, string(payload), rec.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z")); err != nil {
				return fmt.Errorf("insert evidence %s/%s: %w", vaultID, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}
