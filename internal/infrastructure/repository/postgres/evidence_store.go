package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

// EvidenceStore persists evidence cache snapshots in Postgres, one JSONB row
// per record.
type EvidenceStore struct {
	db *sql.DB
}

func NewEvidenceStore(db *sql.DB) *EvidenceStore {
	return &EvidenceStore{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *EvidenceStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS evidence_records (
	vault_id TEXT NOT NULL,
	id TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (vault_id, id)
);

CREATE INDEX IF NOT EXISTS idx_evidence_records_updated_at ON evidence_records(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *EvidenceStore) Load(ctx context.Context) (domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT vault_id, id, payload
FROM evidence_records
ORDER BY vault_id, id
`)
	if err != nil {
		return nil, fmt.Errorf("query evidence records: %w", err)
	}
	defer rows.Close()

	snapshot := domain.Snapshot{}
	for rows.Next() {
		var vaultID, id string
		var payload []byte
		if err := rows.Scan(&vaultID, &id, &payload); err != nil {
			return nil, fmt.Errorf("scan evidence record: %w", err)
		}
		var rec domain.Evidence
		if err := json.Unmarshal(payload, &rec); err != nil {
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
func (s *EvidenceStore) Save(ctx context.Context, snapshot domain.Snapshot) error {
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
	for vaultID, records := range snapshot {
		for id, rec := range records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal evidence %s/%s: %w", vaultID, id, err)
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO evidence_records (vault_id, id, payload, updated_at)
VALUES ($1, $2, $3, $4)
`, vaultID, id, payload, rec.UpdatedAt); err != nil {
				return fmt.Errorf("insert evidence %s/%s: %w", vaultID, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}
