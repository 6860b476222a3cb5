package agency

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// EventSink receives realtime events emitted by the store. An empty rooms
// list means global broadcast; otherwise delivery is scoped to the named
// agents' rooms. Delivery is fire-and-forget.
type EventSink interface {
	Publish(event string, payload any, rooms ...string)
}

type nopSink struct{}

func (nopSink) Publish(string, any, ...string) {}

type Config struct {
	// Admins may remove any dossier or comment; admin removals notify the
	// author with an admin_action notification.
	Admins []string
	Events EventSink
	Clock  func() time.Time
	// OnPersistError is invoked once per failed document write, after the
	// in-memory rollback. Used to feed a metrics counter.
	OnPersistError func()
}

// Store is the mutex-guarded in-memory reference implementation of API.
// All domain rules live here; the persistent backends wrap it with
// write-through persistence.
type Store struct {
	mu sync.Mutex

	cfg    Config
	admins map[string]struct{}

	lastID int64

	agents        map[string]*Agent
	contacts      map[int64]*ContactRecord
	conversations map[int64]*Conversation
	notifications map[int64]*Notification
	dossiers      map[int64]*Dossier
}

func NewStore(cfg Config) *Store {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Events == nil {
		cfg.Events = nopSink{}
	}
	admins := map[string]struct{}{}
	for _, a := range cfg.Admins {
		if v := strings.TrimSpace(a); v != "" {
			admins[v] = struct{}{}
		}
	}
	return &Store{
		cfg:           cfg,
		admins:        admins,
		agents:        map[string]*Agent{},
		contacts:      map[int64]*ContactRecord{},
		conversations: map[int64]*Conversation{},
		notifications: map[int64]*Notification{},
		dossiers:      map[int64]*Dossier{},
	}
}

func (s *Store) now() time.Time {
	return s.cfg.Clock().UTC()
}

// nextIDLocked derives an id from the creation time, bumped to stay
// strictly increasing when two creations land on the same millisecond.
func (s *Store) nextIDLocked(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *Store) publish(event string, payload any, rooms ...string) {
	s.cfg.Events.Publish(event, payload, rooms...)
}

func (s *Store) isAdmin(agent string) bool {
	_, ok := s.admins[agent]
	return ok
}

func (s *Store) agentExistsLocked(name string) bool {
	_, ok := s.agents[name]
	return ok
}

// SeedAgents writes the bootstrap roster, but only when the roster is
// empty; the roster is immutable thereafter.
func (s *Store) SeedAgents(agents []Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.agents) > 0 {
		return nil
	}
	for _, a := range agents {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return newError(CodeInvalidInput, "agent name is required")
		}
		if _, ok := s.agents[name]; ok {
			return newError(CodeConflict, "duplicate agent name: "+name)
		}
		cp := a
		cp.Name = name
		s.agents[name] = &cp
	}
	return nil
}

// ListAgents returns the roster sorted by name. Codes are stripped; they
// are bootstrap credentials, not public data.
func (s *Store) ListAgents() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, Agent{Name: a.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) Health() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"ok":            true,
		"status":        "healthy",
		"agents":        len(s.agents),
		"contacts":      len(s.contacts),
		"conversations": len(s.conversations),
		"notifications": len(s.notifications),
		"dossiers":      len(s.dossiers),
	}
}

var _ API = (*Store)(nil)
