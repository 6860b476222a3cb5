package agency

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Yuzori/l-Agence/internal/logger"
)

// SQLiteStore implements agency.API with SQLite-backed persistence.
// Domain rules stay in the embedded in-memory Store; rows mirror the
// entities with JSON columns for nested shapes (messages inside
// conversations, comments inside dossiers). Writes rewrite the affected
// entity class in one transaction, keeping the whole-document semantics
// of the JSON backend.
type SQLiteStore struct {
	inner *Store
	db    *sqlx.DB
	mu    sync.Mutex
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agents (
	name TEXT PRIMARY KEY,
	code TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY,
	agent1     TEXT NOT NULL,
	agent2     TEXT NOT NULL,
	status     TEXT NOT NULL,
	initiator  TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	accepted_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversations (
	id           INTEGER PRIMARY KEY,
	participants TEXT NOT NULL DEFAULT '[]',
	messages     TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS notifications (
	id            INTEGER PRIMARY KEY,
	recipient     TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	timestamp     TEXT NOT NULL,
	type          TEXT NOT NULL,
	origin_author TEXT NOT NULL DEFAULT '',
	read_by       TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS dossiers (
	id               INTEGER PRIMARY KEY,
	author           TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	description_html TEXT NOT NULL DEFAULT '',
	media            TEXT,
	likes            TEXT NOT NULL DEFAULT '[]',
	dislikes         TEXT NOT NULL DEFAULT '[]',
	reposts          TEXT NOT NULL DEFAULT '[]',
	comments         TEXT NOT NULL DEFAULT '[]',
	timestamp        TEXT NOT NULL
);
`

func NewSQLiteStore(dbPath string, cfg Config) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		inner: NewStore(cfg),
		db:    db,
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- load all state from SQLite into the in-memory Store ---

func (s *SQLiteStore) loadAll() error {
	if err := s.loadAgents(); err != nil {
		return err
	}
	if err := s.loadContacts(); err != nil {
		return err
	}
	if err := s.loadConversations(); err != nil {
		return err
	}
	if err := s.loadNotifications(); err != nil {
		return err
	}
	if err := s.loadDossiers(); err != nil {
		return err
	}

	s.inner.mu.Lock()
	defer s.inner.mu.Unlock()
	bump := func(id int64) {
		if id > s.inner.lastID {
			s.inner.lastID = id
		}
	}
	for id := range s.inner.contacts {
		bump(id)
	}
	for id, c := range s.inner.conversations {
		bump(id)
		for _, m := range c.Messages {
			bump(m.ID)
		}
	}
	for id := range s.inner.notifications {
		bump(id)
	}
	for id, d := range s.inner.dossiers {
		bump(id)
		for _, c := range d.Comments {
			bump(c.ID)
			for _, r := range c.Replies {
				bump(r.ID)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) loadAgents() error {
	rows, err := s.db.Query("SELECT name, code FROM agents")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.Name, &a.Code); err != nil {
			return err
		}
		cp := a
		s.inner.agents[a.Name] = &cp
	}
	return rows.Err()
}

func (s *SQLiteStore) loadContacts() error {
	rows, err := s.db.Query("SELECT id, agent1, agent2, status, initiator, timestamp, accepted_at FROM contacts")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r ContactRecord
		if err := rows.Scan(&r.ID, &r.Agent1, &r.Agent2, &r.Status, &r.Initiator, &r.Timestamp, &r.AcceptedAt); err != nil {
			return err
		}
		cp := r
		s.inner.contacts[r.ID] = &cp
	}
	return rows.Err()
}

func (s *SQLiteStore) loadConversations() error {
	rows, err := s.db.Query("SELECT id, participants, messages FROM conversations")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var c Conversation
		var participantsJSON, messagesJSON string
		if err := rows.Scan(&c.ID, &participantsJSON, &messagesJSON); err != nil {
			return err
		}
		_ = json.Unmarshal([]byte(participantsJSON), &c.Participants)
		_ = json.Unmarshal([]byte(messagesJSON), &c.Messages)
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		cp := c
		s.inner.conversations[c.ID] = &cp
	}
	return rows.Err()
}

func (s *SQLiteStore) loadNotifications() error {
	rows, err := s.db.Query("SELECT id, recipient, message, timestamp, type, origin_author, read_by FROM notifications")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var n Notification
		var timestamp, readByJSON string
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Message, &timestamp, &n.Type, &n.OriginAuthor, &readByJSON); err != nil {
			return err
		}
		n.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		_ = json.Unmarshal([]byte(readByJSON), &n.ReadBy)
		if n.ReadBy == nil {
			n.ReadBy = []string{}
		}
		cp := n
		s.inner.notifications[n.ID] = &cp
	}
	return rows.Err()
}

func (s *SQLiteStore) loadDossiers() error {
	rows, err := s.db.Query(`SELECT id, author, title, description, description_html,
		media, likes, dislikes, reposts, comments, timestamp FROM dossiers`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var d Dossier
		var mediaJSON *string
		var likesJSON, dislikesJSON, repostsJSON, commentsJSON, timestamp string
		if err := rows.Scan(&d.ID, &d.Author, &d.Title, &d.Description, &d.DescriptionHTML,
			&mediaJSON, &likesJSON, &dislikesJSON, &repostsJSON, &commentsJSON, &timestamp); err != nil {
			return err
		}
		if mediaJSON != nil && *mediaJSON != "" {
			_ = json.Unmarshal([]byte(*mediaJSON), &d.Media)
		}
		_ = json.Unmarshal([]byte(likesJSON), &d.Likes)
		_ = json.Unmarshal([]byte(dislikesJSON), &d.Dislikes)
		_ = json.Unmarshal([]byte(repostsJSON), &d.Reposts)
		_ = json.Unmarshal([]byte(commentsJSON), &d.Comments)
		d.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		if d.Likes == nil {
			d.Likes = []string{}
		}
		if d.Dislikes == nil {
			d.Dislikes = []string{}
		}
		if d.Reposts == nil {
			d.Reposts = []Repost{}
		}
		if d.Comments == nil {
			d.Comments = []Comment{}
		}
		cp := d
		s.inner.dossiers[d.ID] = &cp
	}
	return rows.Err()
}

// --- persist helpers ---

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func (s *SQLiteStore) saveAgents() error {
	s.inner.mu.Lock()
	agents := make([]Agent, 0, len(s.inner.agents))
	for _, a := range s.inner.agents {
		agents = append(agents, *a)
	}
	s.inner.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}
	for _, a := range agents {
		if _, err := tx.Exec("INSERT INTO agents (name, code) VALUES (?, ?)", a.Name, a.Code); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) saveContactsAndConversations() error {
	s.inner.mu.Lock()
	contacts := make([]ContactRecord, 0, len(s.inner.contacts))
	for _, r := range s.inner.contacts {
		contacts = append(contacts, *r)
	}
	conversations := make([]Conversation, 0, len(s.inner.conversations))
	for _, c := range s.inner.conversations {
		conversations = append(conversations, *c)
	}
	s.inner.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM contacts"); err != nil {
		return err
	}
	for _, r := range contacts {
		if _, err := tx.Exec(`INSERT INTO contacts (id, agent1, agent2, status, initiator, timestamp, accepted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Agent1, r.Agent2, string(r.Status), r.Initiator, r.Timestamp, r.AcceptedAt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return err
	}
	for _, c := range conversations {
		if _, err := tx.Exec(`INSERT INTO conversations (id, participants, messages) VALUES (?, ?, ?)`,
			c.ID, marshalJSON(c.Participants), marshalJSON(c.Messages)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) saveNotifications() error {
	s.inner.mu.Lock()
	notifications := make([]Notification, 0, len(s.inner.notifications))
	for _, n := range s.inner.notifications {
		notifications = append(notifications, *n)
	}
	s.inner.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM notifications"); err != nil {
		return err
	}
	for _, n := range notifications {
		if _, err := tx.Exec(`INSERT INTO notifications (id, recipient, message, timestamp, type, origin_author, read_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.Recipient, n.Message, n.Timestamp.UTC().Format(time.RFC3339Nano),
			string(n.Type), n.OriginAuthor, marshalJSON(n.ReadBy)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) saveDossiers() error {
	s.inner.mu.Lock()
	dossiers := make([]Dossier, 0, len(s.inner.dossiers))
	for _, d := range s.inner.dossiers {
		dossiers = append(dossiers, *d)
	}
	s.inner.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM dossiers"); err != nil {
		return err
	}
	for _, d := range dossiers {
		var media *string
		if d.Media != nil {
			m := marshalJSON(d.Media)
			media = &m
		}
		if _, err := tx.Exec(`INSERT INTO dossiers (id, author, title, description, description_html,
			media, likes, dislikes, reposts, comments, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Author, d.Title, d.Description, d.DescriptionHTML,
			media, marshalJSON(d.Likes), marshalJSON(d.Dislikes),
			marshalJSON(d.Reposts), marshalJSON(d.Comments),
			d.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) persistMessaging() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveContactsAndConversations(); err != nil {
		return s.persistErr("messaging state", err)
	}
	if err := s.saveNotifications(); err != nil {
		return s.persistErr("notifications", err)
	}
	return nil
}

func (s *SQLiteStore) persistNotifications() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveNotifications(); err != nil {
		return s.persistErr("notifications", err)
	}
	return nil
}

func (s *SQLiteStore) persistFeed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveDossiers(); err != nil {
		return s.persistErr("dossiers", err)
	}
	if err := s.saveNotifications(); err != nil {
		return s.persistErr("notifications", err)
	}
	return nil
}


func (s *SQLiteStore) persistErr(what string, err error) error {
	logger.Error("persist_failed", "target", what, "error", err)
	if s.inner.cfg.OnPersistError != nil {
		s.inner.cfg.OnPersistError()
	}
	return NewInternalError("failed to persist " + what + ": " + err.Error())
}

// --- agency.API implementation ---

func (s *SQLiteStore) SeedAgents(agents []Agent) error {
	if err := s.inner.SeedAgents(agents); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveAgents(); err != nil {
		return s.persistErr("agents", err)
	}
	return nil
}

func (s *SQLiteStore) ListAgents() []Agent {
	return s.inner.ListAgents()
}

func (s *SQLiteStore) RequestContact(sender, recipient string) (*ContactRecord, error) {
	out, err := s.inner.RequestContact(sender, recipient)
	if err != nil {
		return nil, err
	}
	if perr := s.persistMessaging(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) AcceptContact(contactID int64, acceptor string) (*ContactRecord, error) {
	out, err := s.inner.AcceptContact(contactID, acceptor)
	if err != nil {
		return nil, err
	}
	if perr := s.persistMessaging(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) DeclineContact(contactID int64, decliner string) (*ContactRecord, error) {
	out, err := s.inner.DeclineContact(contactID, decliner)
	if err != nil {
		return nil, err
	}
	if perr := s.persistMessaging(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) ListContacts(agent string) ([]ContactRecord, error) {
	return s.inner.ListContacts(agent)
}

func (s *SQLiteStore) IsAcceptedFriend(a, b string) bool {
	return s.inner.IsAcceptedFriend(a, b)
}

func (s *SQLiteStore) GetConversation(a, b string) ([]Message, error) {
	return s.inner.GetConversation(a, b)
}

func (s *SQLiteStore) SendMessage(input SendMessageInput) (*Message, error) {
	out, err := s.inner.SendMessage(input)
	if err != nil {
		return nil, err
	}
	if perr := s.persistMessaging(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) React(messageID int64, agent, emoji string) ([]Reaction, error) {
	out, err := s.inner.React(messageID, agent, emoji)
	if err != nil {
		return nil, err
	}
	if perr := s.persistMessaging(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) Notify(recipient, message string, typ NotificationType, originAuthor string) (*Notification, error) {
	out, err := s.inner.Notify(recipient, message, typ, originAuthor)
	if err != nil {
		return nil, err
	}
	if perr := s.persistNotifications(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) ListNotifications(agent string) ([]NotificationView, error) {
	return s.inner.ListNotifications(agent)
}

func (s *SQLiteStore) MarkRead(notificationID int64, agent string) error {
	if err := s.inner.MarkRead(notificationID, agent); err != nil {
		return err
	}
	return s.persistNotifications()
}

func (s *SQLiteStore) MarkAllRead(agent string) error {
	if err := s.inner.MarkAllRead(agent); err != nil {
		return err
	}
	return s.persistNotifications()
}

func (s *SQLiteStore) DeleteNotification(id int64) error {
	if err := s.inner.DeleteNotification(id); err != nil {
		return err
	}
	return s.persistNotifications()
}

func (s *SQLiteStore) PruneReadBroadcasts(maxAge time.Duration) (int, error) {
	pruned, err := s.inner.PruneReadBroadcasts(maxAge)
	if err != nil || pruned == 0 {
		return pruned, err
	}
	return pruned, s.persistNotifications()
}

func (s *SQLiteStore) CreateDossier(input CreateDossierInput) (*Dossier, error) {
	out, err := s.inner.CreateDossier(input)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) UpdateDossier(input UpdateDossierInput) (*Dossier, error) {
	out, err := s.inner.UpdateDossier(input)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) DeleteDossier(id int64, requester string) error {
	if err := s.inner.DeleteDossier(id, requester); err != nil {
		return err
	}
	return s.persistFeed()
}

func (s *SQLiteStore) LikeDossier(id int64, agent string) (*Dossier, error) {
	out, err := s.inner.LikeDossier(id, agent)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) DislikeDossier(id int64, agent string) (*Dossier, error) {
	out, err := s.inner.DislikeDossier(id, agent)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) RepostDossier(id int64, agent string) (*Dossier, error) {
	out, err := s.inner.RepostDossier(id, agent)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) AddComment(dossierID int64, author, text string) (*Comment, error) {
	out, err := s.inner.AddComment(dossierID, author, text)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) ReplyToComment(commentID int64, author, text string) (*Comment, error) {
	out, err := s.inner.ReplyToComment(commentID, author, text)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) EditComment(commentID int64, editor, text string) (*Comment, error) {
	out, err := s.inner.EditComment(commentID, editor, text)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) DeleteComment(commentID int64, requester string) error {
	if err := s.inner.DeleteComment(commentID, requester); err != nil {
		return err
	}
	return s.persistFeed()
}

func (s *SQLiteStore) LikeComment(commentID int64, agent string) (*Comment, error) {
	out, err := s.inner.LikeComment(commentID, agent)
	if err != nil {
		return nil, err
	}
	if perr := s.persistFeed(); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (s *SQLiteStore) ListDossiers() []Dossier {
	return s.inner.ListDossiers()
}

func (s *SQLiteStore) GetDossier(id int64) (*Dossier, error) {
	return s.inner.GetDossier(id)
}

func (s *SQLiteStore) Health() map[string]any {
	return s.inner.Health()
}

// Ensure SQLiteStore satisfies the API interface at compile time.
var _ API = (*SQLiteStore)(nil)
