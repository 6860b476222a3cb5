package docstore

import (
	"os"
	"path/filepath"
	"testing"
)

type sampleDoc struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

func TestLoadMissingLeavesDefault(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	doc := sampleDoc{Count: 7}
	if err := s.Load("absent", &doc); err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if doc.Count != 7 {
		t.Fatalf("expected default preserved, got %d", doc.Count)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	in := sampleDoc{Names: []string{"Omar", "Achraf"}, Count: 2}
	if err := s.Save("roster", in); err != nil {
		t.Fatalf("save: %v", err)
	}
	var out sampleDoc
	if err := s.Load("roster", &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Count != 2 || len(out.Names) != 2 || out.Names[1] != "Achraf" {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}

	// No stray temp file left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "roster.json" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestLoadCorruptDocumentFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	var doc sampleDoc
	if err := s.Load("broken", &doc); err != nil {
		t.Fatalf("load corrupt: %v", err)
	}
	if doc.Count != 0 || doc.Names != nil {
		t.Fatalf("expected zero value on corruption, got %+v", doc)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save("doc", sampleDoc{Count: 1}); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := s.Save("doc", sampleDoc{Count: 2}); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	var out sampleDoc
	if err := s.Load("doc", &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Count != 2 {
		t.Fatalf("expected latest write, got %d", out.Count)
	}
}
