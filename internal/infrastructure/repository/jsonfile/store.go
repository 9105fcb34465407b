// Package jsonfile persists the evidence cache as one JSON document on disk.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

const DefaultPath = "./data/evidence.json"

type Store struct {
	path string
}

func New(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create evidence cache dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load returns an empty snapshot when the file does not exist yet.
func (s *Store) Load(_ context.Context) (domain.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read evidence cache: %w", err)
	}
	if len(raw) == 0 {
		return domain.Snapshot{}, nil
	}
	var snapshot domain.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode evidence cache %s: %w", s.path, err)
	}
	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}
	return snapshot, nil
}

// Save writes to a temp file in the same directory and renames it over the
// previous snapshot, so readers never observe a half-written file.
func (s *Store) Save(_ context.Context, snapshot domain.Snapshot) error {
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode evidence cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".evidence-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace evidence cache: %w", err)
	}
	return nil
}
