package agency

import (
	"strings"
	"time"
)

// pairConversationLocked finds the two-party thread for an unordered pair.
// Conversations with a participant count other than 2 are skipped so any
// future group-chat data never leaks into pairwise logic.
func (s *Store) pairConversationLocked(a, b string) *Conversation {
	for _, c := range s.conversations {
		if len(c.Participants) != 2 {
			continue
		}
		p0, p1 := c.Participants[0], c.Participants[1]
		if (p0 == a && p1 == b) || (p0 == b && p1 == a) {
			return c
		}
	}
	return nil
}

// ensureConversationLocked creates the pair's thread if absent; calling it
// again for an already-accepted pair never duplicates.
func (s *Store) ensureConversationLocked(a, b string, now time.Time) *Conversation {
	if existing := s.pairConversationLocked(a, b); existing != nil {
		return existing
	}
	c := &Conversation{
		ID:           s.nextIDLocked(now),
		Participants: []string{a, b},
		Messages:     []Message{},
	}
	s.conversations[c.ID] = c
	return c
}

// GetConversation returns the pair's messages; absence is not exceptional
// and yields an empty sequence.
func (s *Store) GetConversation(a, b string) ([]Message, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, newError(CodeInvalidInput, "both agents are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.pairConversationLocked(a, b)
	if c == nil {
		return []Message{}, nil
	}
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out, nil
}

func (s *Store) SendMessage(input SendMessageInput) (*Message, error) {
	sender := strings.TrimSpace(input.Sender)
	recipient := strings.TrimSpace(input.Recipient)
	text := strings.TrimSpace(input.Text)
	if sender == "" || recipient == "" {
		return nil, newError(CodeInvalidInput, "sender and recipient are required")
	}
	if text == "" && input.Media == nil {
		return nil, newError(CodeInvalidInput, "message needs text or media")
	}
	if input.Media != nil && input.Media.Type != MediaImage && input.Media.Type != MediaVideo {
		return nil, newError(CodeInvalidInput, "media type must be image or video")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isAcceptedFriendLocked(sender, recipient) {
		return nil, newError(CodeForbidden, "you must be contacts to exchange messages")
	}
	c := s.pairConversationLocked(sender, recipient)
	if c == nil {
		return nil, newError(CodeForbidden, "no conversation exists for this pair")
	}

	m := Message{
		ID:        s.nextIDLocked(now),
		Sender:    sender,
		Timestamp: now,
		Reactions: []Reaction{},
	}
	if text != "" {
		m.Text = &text
	}
	if input.Media != nil {
		media := *input.Media
		m.Media = &media
	}
	c.Messages = append(c.Messages, m)

	s.notifyLocked(recipient, "New message from "+sender, NotifNewMessage, sender, now)
	s.publish(EventNewPrivateMessage, map[string]any{
		"conversationId": c.ID,
		"message":        m,
	}, sender, recipient)

	cp := m
	return &cp, nil
}

// React toggles or replaces an agent's reaction on a message. Same emoji
// removes it, a different emoji replaces the stored one; at most one
// reaction per agent per message.
func (s *Store) React(messageID int64, agent, emoji string) ([]Reaction, error) {
	agent = strings.TrimSpace(agent)
	emoji = strings.TrimSpace(emoji)
	if agent == "" || emoji == "" {
		return nil, newError(CodeInvalidInput, "agent and emoji are required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var conv *Conversation
	var msg *Message
	for _, c := range s.conversations {
		for i := range c.Messages {
			if c.Messages[i].ID == messageID {
				conv = c
				msg = &c.Messages[i]
				break
			}
		}
		if msg != nil {
			break
		}
	}
	if msg == nil {
		return nil, newError(CodeNotFound, "message not found")
	}

	replaced := false
	for i, r := range msg.Reactions {
		if r.Agent != agent {
			continue
		}
		if r.Emoji == emoji {
			msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
		} else {
			msg.Reactions[i].Emoji = emoji
		}
		replaced = true
		break
	}
	if !replaced {
		msg.Reactions = append(msg.Reactions, Reaction{Agent: agent, Emoji: emoji})
	}

	if msg.Sender != agent {
		s.notifyLocked(msg.Sender, agent+" reacted to your message", NotifMessageReaction, agent, now)
	}
	s.publish(EventMessageReactionUpdate, map[string]any{
		"conversationId": conv.ID,
		"messageId":      msg.ID,
		"reactions":      msg.Reactions,
	}, conv.Participants...)

	out := make([]Reaction, len(msg.Reactions))
	copy(out, msg.Reactions)
	return out, nil
}
