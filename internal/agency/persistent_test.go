package agency

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Yuzori/l-Agence/internal/docstore"
)

func newPersistentTestStore(t *testing.T, dir string) (*PersistentStore, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	docs, err := docstore.Open(dir)
	if err != nil {
		t.Fatalf("open docstore: %v", err)
	}
	p, err := NewPersistentStore(docs, Config{
		Admins: []string{"Moderator"},
		Clock: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatalf("new persistent store: %v", err)
	}
	return p, &now
}

func TestPersistentStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	p, _ := newPersistentTestStore(t, dir)

	if err := p.SeedAgents([]Agent{{Name: "Omar"}, {Name: "Achraf"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r, err := p.RequestContact("Omar", "Achraf")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := p.AcceptContact(r.ID, "Achraf"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	m, err := p.SendMessage(SendMessageInput{Sender: "Omar", Recipient: "Achraf", Text: "avant restart"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := p.React(m.ID, "Achraf", "👍"); err != nil {
		t.Fatalf("react: %v", err)
	}
	d, err := p.CreateDossier(CreateDossierInput{Author: "Omar", Title: "Projet X", Description: "**bold**"})
	if err != nil {
		t.Fatalf("create dossier: %v", err)
	}
	if _, err := p.AddComment(d.ID, "Achraf", "bien vu"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	// Fresh store over the same directory: everything must come back.
	p2, _ := newPersistentTestStore(t, dir)

	agents := p2.ListAgents()
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents after restart, got %d", len(agents))
	}
	if !p2.IsAcceptedFriend("Omar", "Achraf") {
		t.Fatalf("expected accepted contact to survive restart")
	}
	msgs, err := p2.GetConversation("Omar", "Achraf")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text == nil || *msgs[0].Text != "avant restart" {
		t.Fatalf("unexpected conversation after restart: %v", msgs)
	}
	if len(msgs[0].Reactions) != 1 || msgs[0].Reactions[0].Emoji != "👍" {
		t.Fatalf("expected reaction to survive restart, got %v", msgs[0].Reactions)
	}
	got, err := p2.GetDossier(d.ID)
	if err != nil {
		t.Fatalf("get dossier: %v", err)
	}
	if got.DescriptionHTML == "" || len(got.Comments) != 1 {
		t.Fatalf("unexpected dossier after restart: %+v", got)
	}
	views, err := p2.ListNotifications("Achraf")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(views) == 0 {
		t.Fatalf("expected notifications to survive restart")
	}
}

func TestPersistentStoreResumesIDCounter(t *testing.T) {
	dir := t.TempDir()
	p, _ := newPersistentTestStore(t, dir)

	if err := p.SeedAgents([]Agent{{Name: "Omar"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d1, err := p.CreateDossier(CreateDossierInput{Author: "Omar", Title: "first"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	p2, _ := newPersistentTestStore(t, dir)
	d2, err := p2.CreateDossier(CreateDossierInput{Author: "Omar", Title: "second"})
	if err != nil {
		t.Fatalf("create after restart: %v", err)
	}
	if d2.ID <= d1.ID {
		t.Fatalf("expected id counter to resume past %d, got %d", d1.ID, d2.ID)
	}
}

func TestPersistentStoreWritesDocuments(t *testing.T) {
	dir := t.TempDir()
	p, _ := newPersistentTestStore(t, dir)

	if err := p.SeedAgents([]Agent{{Name: "Omar"}, {Name: "Achraf"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r, err := p.RequestContact("Omar", "Achraf")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := p.AcceptContact(r.ID, "Achraf"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Contacts and conversations share one document so the accept lands as
	// a single write.
	for _, name := range []string{"agents.json", "messages.json", "notifications.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s on disk: %v", name, err)
		}
	}
}

func TestPersistentStoreStartsEmptyOnFreshDir(t *testing.T) {
	p, _ := newPersistentTestStore(t, t.TempDir())
	if got := len(p.ListAgents()); got != 0 {
		t.Fatalf("expected empty roster, got %d", got)
	}
	if got := len(p.ListDossiers()); got != 0 {
		t.Fatalf("expected empty feed, got %d", got)
	}
}
