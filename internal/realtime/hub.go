// Package realtime is a room-based publish/subscribe channel keyed by
// agent identity. Delivery is at-most-once and best-effort: events live in
// a bounded in-memory ring that trims oldest first, and consumers poll
// with a cursor. Nothing is durable.
package realtime

import (
	"sync"
	"time"
)

type Event struct {
	ID      int64     `json:"id"`
	Name    string    `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
	Rooms   []string  `json:"-"`
}

type Config struct {
	MaxEvents int
	WaitMax   time.Duration
	Clock     func() time.Time
	// OnConnectedChange is invoked with the number of distinct connected
	// agents whenever it changes; used to feed a gauge.
	OnConnectedChange func(int)
}

type Hub struct {
	mu sync.Mutex

	cfg       Config
	nextID    int64
	events    []Event
	connected map[string]int
}

func NewHub(cfg Config) *Hub {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.WaitMax <= 0 {
		cfg.WaitMax = 60 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Hub{
		cfg:       cfg,
		events:    []Event{},
		connected: map[string]int{},
	}
}

// Publish appends an event to the ring. No rooms means global broadcast;
// otherwise only the named agents' rooms see it.
func (h *Hub) Publish(event string, payload any, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.events = append(h.events, Event{
		ID:      h.nextID,
		Name:    event,
		At:      h.cfg.Clock().UTC(),
		Payload: payload,
		Rooms:   append([]string{}, rooms...),
	})
	if len(h.events) > h.cfg.MaxEvents {
		drop := len(h.events) - h.cfg.MaxEvents
		h.events = append([]Event{}, h.events[drop:]...)
	}
}

func visibleTo(evt Event, agent string) bool {
	if len(evt.Rooms) == 0 {
		return true
	}
	for _, room := range evt.Rooms {
		if room == agent {
			return true
		}
	}
	return false
}

// Since returns events after the cursor visible to the agent, polling up
// to wait before returning empty.
func (h *Hub) Since(afterID int64, agent string, wait time.Duration) ([]Event, int64) {
	if wait < 0 {
		wait = 0
	}
	if wait > h.cfg.WaitMax {
		wait = h.cfg.WaitMax
	}
	deadline := h.cfg.Clock().Add(wait)

	for {
		h.mu.Lock()
		out := []Event{}
		last := afterID
		for _, evt := range h.events {
			if evt.ID <= afterID {
				continue
			}
			if !visibleTo(evt, agent) {
				last = evt.ID
				continue
			}
			out = append(out, evt)
			last = evt.ID
		}
		h.mu.Unlock()

		if len(out) > 0 || wait == 0 || h.cfg.Clock().After(deadline) {
			return out, last
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Connect records an agent joining its room. Reference-counted so a
// multi-tab agent disconnects cleanly.
func (h *Hub) Connect(agent string) {
	h.mu.Lock()
	h.connected[agent]++
	n := len(h.connected)
	h.mu.Unlock()
	if h.cfg.OnConnectedChange != nil {
		h.cfg.OnConnectedChange(n)
	}
}

func (h *Hub) Disconnect(agent string) {
	h.mu.Lock()
	if h.connected[agent] > 0 {
		h.connected[agent]--
	}
	if h.connected[agent] == 0 {
		delete(h.connected, agent)
	}
	n := len(h.connected)
	h.mu.Unlock()
	if h.cfg.OnConnectedChange != nil {
		h.cfg.OnConnectedChange(n)
	}
}

// Connected reports the number of distinct agents with an open stream.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connected)
}
