// Package docstore is a whole-document JSON store: load a named document
// or get the caller's default shape back, save by full overwrite through a
// tmp-file rename. No transactions, no partial updates, last-writer-wins.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Yuzori/l-Agence/internal/logger"
)

type Store struct {
	dir string
}

// Open ensures the data directory exists. Directory creation failure is
// the only fatal storage error; everything later degrades per document.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("docstore: empty data dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load fills dst from the named document. A missing or malformed file
// leaves dst at its zero value (the caller-supplied default shape) and
// returns nil; corruption is logged and repaired by the next Save.
func (s *Store) Load(name string, dst any) error {
	blob, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("docstore: read %s: %w", name, err)
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		logger.Warn("docstore_document_corrupt", "name", name, "error", err)
		return nil
	}
	return nil
}

// Save overwrites the named document in full. The write lands in a tmp
// file first and is renamed into place.
func (s *Store) Save(name string, doc any) error {
	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("docstore: marshal %s: %w", name, err)
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("docstore: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("docstore: rename %s: %w", name, err)
	}
	return nil
}
