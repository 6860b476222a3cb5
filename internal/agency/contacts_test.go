package agency

import (
	"testing"
)

func requestAndAccept(t *testing.T, s *Store, from, to string) *ContactRecord {
	t.Helper()
	r, err := s.RequestContact(from, to)
	if err != nil {
		t.Fatalf("request contact %s->%s: %v", from, to, err)
	}
	accepted, err := s.AcceptContact(r.ID, to)
	if err != nil {
		t.Fatalf("accept contact %d by %s: %v", r.ID, to, err)
	}
	return accepted
}

func TestContactRequestSelfRejected(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar")

	_, err := s.RequestContact("Omar", "Omar")
	mustCode(t, err, CodeInvalidInput)

	// The self check is the one case-insensitive comparison.
	_, err = s.RequestContact("Omar", "omar")
	mustCode(t, err, CodeInvalidInput)
}

func TestContactRequestUnknownAgents(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar")

	_, err := s.RequestContact("Ghost", "Omar")
	mustCode(t, err, CodeNotFound)
	_, err = s.RequestContact("Omar", "Ghost")
	mustCode(t, err, CodeNotFound)
}

func TestContactRequestNotifiesRecipient(t *testing.T) {
	s, _, sink := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	if _, err := s.RequestContact("Omar", "Achraf"); err != nil {
		t.Fatalf("request: %v", err)
	}

	views, err := s.ListNotifications("Achraf")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(views) != 1 || views[0].Type != NotifContactRequest {
		t.Fatalf("expected one contact_request notification, got %v", views)
	}

	events := sink.byName(EventContactRequestReceived)
	if len(events) != 1 {
		t.Fatalf("expected one contact_request_received event, got %d", len(events))
	}
	if len(events[0].Rooms) != 1 || events[0].Rooms[0] != "Achraf" {
		t.Fatalf("expected event scoped to recipient room, got %v", events[0].Rooms)
	}
}

func TestContactRequestDuplicateConflicts(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	if _, err := s.RequestContact("Omar", "Achraf"); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, err := s.RequestContact("Omar", "Achraf")
	mustCode(t, err, CodeConflict)
	// Reverse direction hits the same pending pair.
	_, err = s.RequestContact("Achraf", "Omar")
	mustCode(t, err, CodeConflict)
}

func TestAcceptCreatesConversationAtomically(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	accepted := requestAndAccept(t, s, "Omar", "Achraf")
	if accepted.Status != ContactAccepted {
		t.Fatalf("status=%s want=%s", accepted.Status, ContactAccepted)
	}
	if accepted.AcceptedAt == 0 {
		t.Fatalf("expected acceptedAt to be set")
	}

	msgs, err := s.GetConversation("Omar", "Achraf")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty conversation to exist, got %v", msgs)
	}
	if !s.IsAcceptedFriend("Achraf", "Omar") {
		t.Fatalf("expected pair to be accepted friends")
	}

	// Requesting again now reports the existing relationship.
	_, err = s.RequestContact("Achraf", "Omar")
	mustCode(t, err, CodeConflict)
}

func TestAcceptOnlyByInvitedParty(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	r, err := s.RequestContact("Omar", "Achraf")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// The initiator cannot accept their own request, even with the right id.
	_, err = s.AcceptContact(r.ID, "Omar")
	mustCode(t, err, CodeNotFound)
	_, err = s.AcceptContact(r.ID+999, "Achraf")
	mustCode(t, err, CodeNotFound)
}

func TestDeclineDeletesRecordAndAllowsRetry(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	r, err := s.RequestContact("Omar", "Achraf")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	declined, err := s.DeclineContact(r.ID, "Achraf")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != ContactDeclined {
		t.Fatalf("status=%s want=%s", declined.Status, ContactDeclined)
	}

	contacts, err := s.ListContacts("Omar")
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 0 {
		t.Fatalf("expected no stored record after decline, got %v", contacts)
	}

	// No tombstone: the pair may try again.
	if _, err := s.RequestContact("Omar", "Achraf"); err != nil {
		t.Fatalf("re-request after decline: %v", err)
	}
}

func TestListContactsSortedByID(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf", "Leila")

	r1, err := s.RequestContact("Omar", "Achraf")
	if err != nil {
		t.Fatalf("request 1: %v", err)
	}
	r2, err := s.RequestContact("Leila", "Omar")
	if err != nil {
		t.Fatalf("request 2: %v", err)
	}

	contacts, err := s.ListContacts("Omar")
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 records, got %d", len(contacts))
	}
	if contacts[0].ID != r1.ID || contacts[1].ID != r2.ID {
		t.Fatalf("expected records sorted by id, got %v", contacts)
	}
}
