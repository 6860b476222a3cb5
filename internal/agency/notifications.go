package agency

import (
	"sort"
	"strings"
	"time"
)

func (s *Store) notifyLocked(recipient, message string, typ NotificationType, originAuthor string, now time.Time) *Notification {
	n := &Notification{
		ID:           s.nextIDLocked(now),
		Recipient:    recipient,
		Message:      message,
		Timestamp:    now,
		Type:         typ,
		OriginAuthor: originAuthor,
		ReadBy:       []string{},
	}
	s.notifications[n.ID] = n

	// Broadcast records go to every room; direct records stay scoped to
	// the recipient so other agents never observe them.
	if recipient == RecipientAll {
		s.publish(EventNewNotification, n)
	} else {
		s.publish(EventNewNotification, n, recipient)
	}
	return n
}

// Notify is a pure append; it always succeeds for a well-formed input.
func (s *Store) Notify(recipient, message string, typ NotificationType, originAuthor string) (*Notification, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, newError(CodeInvalidInput, "recipient is required")
	}
	if _, ok := notificationTypes[typ]; !ok {
		return nil, newError(CodeInvalidInput, "unknown notification type: "+string(typ))
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notifyLocked(recipient, message, typ, originAuthor, now)
	cp := *n
	return &cp, nil
}

func readBy(n *Notification, agent string) bool {
	for _, a := range n.ReadBy {
		if a == agent {
			return true
		}
	}
	return false
}

// ListNotifications returns the agent's currently-visible set: direct
// records addressed to it, unread broadcasts, and friend-scoped posts
// whose visibility is derived through the contact graph at read time
// rather than fanned out per friend at write time.
func (s *Store) ListNotifications(agent string) ([]NotificationView, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, newError(CodeInvalidInput, "agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.agentExistsLocked(agent) {
		return nil, newError(CodeNotFound, "unknown agent: "+agent)
	}

	out := []NotificationView{}
	for _, n := range s.notifications {
		switch {
		case n.Recipient == agent:
			out = append(out, NotificationView{Notification: *n, Read: false})
		case n.Recipient == RecipientAll && n.Type == NotifNewPostFriend:
			if n.OriginAuthor == agent || readBy(n, agent) {
				continue
			}
			if !s.isAcceptedFriendLocked(agent, n.OriginAuthor) {
				continue
			}
			out = append(out, NotificationView{Notification: *n, Read: false})
		case n.Recipient == RecipientAll:
			if readBy(n, agent) {
				continue
			}
			out = append(out, NotificationView{Notification: *n, Read: false})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// MarkRead consumes a direct notification outright; broadcast records get
// the agent appended to readBy and stay stored for everyone else.
func (s *Store) MarkRead(notificationID int64, agent string) error {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return newError(CodeInvalidInput, "agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[notificationID]
	if !ok {
		return newError(CodeNotFound, "notification not found")
	}
	if n.Recipient == RecipientAll {
		if !readBy(n, agent) {
			n.ReadBy = append(n.ReadBy, agent)
		}
		return nil
	}
	delete(s.notifications, notificationID)
	return nil
}

func (s *Store) MarkAllRead(agent string) error {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return newError(CodeInvalidInput, "agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range s.notifications {
		if n.Recipient == RecipientAll {
			if !readBy(n, agent) {
				n.ReadBy = append(n.ReadBy, agent)
			}
			continue
		}
		if n.Recipient == agent {
			delete(s.notifications, id)
		}
	}
	s.publish(EventDeleteAllNotifications, map[string]any{"agent": agent}, agent)
	return nil
}

func (s *Store) DeleteNotification(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return newError(CodeNotFound, "notification not found")
	}
	delete(s.notifications, id)

	payload := map[string]any{"id": id}
	if n.Recipient == RecipientAll {
		s.publish(EventDeleteNotification, payload)
	} else {
		s.publish(EventDeleteNotification, payload, n.Recipient)
	}
	return nil
}

// PruneReadBroadcasts drops broadcast notifications that are both older
// than maxAge and already read by the whole roster. Direct records are
// never swept; they are deleted on read.
func (s *Store) PruneReadBroadcasts(maxAge time.Duration) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, n := range s.notifications {
		if n.Recipient != RecipientAll {
			continue
		}
		if now.Sub(n.Timestamp) <= maxAge {
			continue
		}
		readByAll := true
		for name := range s.agents {
			if name == n.OriginAuthor {
				continue
			}
			if !readBy(n, name) {
				readByAll = false
				break
			}
		}
		if readByAll {
			delete(s.notifications, id)
			pruned++
		}
	}
	return pruned, nil
}
