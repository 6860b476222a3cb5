package agency

import (
	"sort"
	"strings"
)

func samePair(r *ContactRecord, a, b string) bool {
	return (r.Agent1 == a && r.Agent2 == b) || (r.Agent1 == b && r.Agent2 == a)
}

// findPairLocked returns the non-declined record for the unordered pair, if
// any. Declined records are deleted outright, so at most one can match.
func (s *Store) findPairLocked(a, b string) *ContactRecord {
	for _, r := range s.contacts {
		if r.Status != ContactDeclined && samePair(r, a, b) {
			return r
		}
	}
	return nil
}

func (s *Store) RequestContact(sender, recipient string) (*ContactRecord, error) {
	sender = strings.TrimSpace(sender)
	recipient = strings.TrimSpace(recipient)
	if sender == "" || recipient == "" {
		return nil, newError(CodeInvalidInput, "sender and recipient are required")
	}
	if strings.EqualFold(sender, recipient) {
		return nil, newError(CodeInvalidInput, "cannot send a contact request to yourself")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.agentExistsLocked(sender) {
		return nil, newError(CodeNotFound, "unknown sender: "+sender)
	}
	if !s.agentExistsLocked(recipient) {
		return nil, newError(CodeNotFound, "unknown recipient: "+recipient)
	}
	if existing := s.findPairLocked(sender, recipient); existing != nil {
		if existing.Status == ContactAccepted {
			return nil, newError(CodeConflict, "you are already contacts")
		}
		return nil, newError(CodeConflict, "a contact request is already pending")
	}

	r := &ContactRecord{
		ID:        s.nextIDLocked(now),
		Agent1:    sender,
		Agent2:    recipient,
		Status:    ContactPending,
		Initiator: sender,
		Timestamp: now.UnixMilli(),
	}
	s.contacts[r.ID] = r

	s.notifyLocked(recipient, sender+" sent you a contact request", NotifContactRequest, sender, now)
	s.publish(EventContactRequestReceived, r, recipient)

	cp := *r
	return &cp, nil
}

// AcceptContact transitions a pending record to accepted. Only the invited
// party (agent2) may accept; anyone else gets NotFound, including the
// initiator with a correct id.
func (s *Store) AcceptContact(contactID int64, acceptor string) (*ContactRecord, error) {
	acceptor = strings.TrimSpace(acceptor)
	if acceptor == "" {
		return nil, newError(CodeInvalidInput, "acceptor is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.contacts[contactID]
	if !ok || r.Status != ContactPending || r.Agent2 != acceptor {
		return nil, newError(CodeNotFound, "no pending contact request found")
	}

	r.Status = ContactAccepted
	r.AcceptedAt = now.UnixMilli()

	// Accept and conversation creation commit under one critical section so
	// the pair never ends up accepted without a thread.
	s.ensureConversationLocked(r.Agent1, r.Agent2, now)

	s.notifyLocked(r.Initiator, acceptor+" accepted your contact request", NotifContactAccepted, acceptor, now)
	s.publish(EventContactAccepted, r, r.Agent1, r.Agent2)

	cp := *r
	return &cp, nil
}

// DeclineContact deletes the pending record; no declined tombstone is
// retained, so the pair may request again later.
func (s *Store) DeclineContact(contactID int64, decliner string) (*ContactRecord, error) {
	decliner = strings.TrimSpace(decliner)
	if decliner == "" {
		return nil, newError(CodeInvalidInput, "decliner is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.contacts[contactID]
	if !ok || r.Status != ContactPending || r.Agent2 != decliner {
		return nil, newError(CodeNotFound, "no pending contact request found")
	}

	delete(s.contacts, contactID)
	declined := *r
	declined.Status = ContactDeclined

	s.notifyLocked(r.Initiator, decliner+" declined your contact request", NotifContactDeclined, decliner, now)
	s.publish(EventContactDeclined, &declined, r.Agent1, r.Agent2)

	return &declined, nil
}

func (s *Store) ListContacts(agent string) ([]ContactRecord, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, newError(CodeInvalidInput, "agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.agentExistsLocked(agent) {
		return nil, newError(CodeNotFound, "unknown agent: "+agent)
	}
	out := []ContactRecord{}
	for _, r := range s.contacts {
		if r.Agent1 == agent || r.Agent2 == agent {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IsAcceptedFriend(a, b string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAcceptedFriendLocked(a, b)
}

func (s *Store) isAcceptedFriendLocked(a, b string) bool {
	for _, r := range s.contacts {
		if r.Status == ContactAccepted && samePair(r, a, b) {
			return true
		}
	}
	return false
}
