package agency

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var dossierMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderDescriptionHTML converts dossier markdown to HTML. Raw HTML in the
// source is escaped by goldmark's default policy.
func renderDescriptionHTML(description string) string {
	var sb strings.Builder
	if err := dossierMarkdown.Convert([]byte(description), &sb); err != nil {
		return ""
	}
	return sb.String()
}

func (s *Store) dossierLocked(id int64) (*Dossier, error) {
	d, ok := s.dossiers[id]
	if !ok {
		return nil, newError(CodeNotFound, "dossier not found")
	}
	return d, nil
}

// findCommentLocked locates a comment by id across all dossiers. Linear
// scan; the roster scale keeps this cheap.
func (s *Store) findCommentLocked(commentID int64) (*Dossier, *Comment) {
	for _, d := range s.dossiers {
		for i := range d.Comments {
			if d.Comments[i].ID == commentID {
				return d, &d.Comments[i]
			}
		}
	}
	return nil, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (s *Store) CreateDossier(input CreateDossierInput) (*Dossier, error) {
	author := strings.TrimSpace(input.Author)
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if author == "" {
		return nil, newError(CodeInvalidInput, "author is required")
	}
	if title == "" && description == "" {
		return nil, newError(CodeInvalidInput, "dossier needs a title or a description")
	}
	if input.Media != nil && input.Media.Type != MediaImage && input.Media.Type != MediaVideo {
		return nil, newError(CodeInvalidInput, "media type must be image or video")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.agentExistsLocked(author) {
		return nil, newError(CodeInvalidInput, "unknown author: "+author)
	}

	d := &Dossier{
		ID:              s.nextIDLocked(now),
		Author:          author,
		Title:           title,
		Description:     description,
		DescriptionHTML: renderDescriptionHTML(description),
		Likes:           []string{},
		Dislikes:        []string{},
		Reposts:         []Repost{},
		Comments:        []Comment{},
		Timestamp:       now,
	}
	if input.Media != nil {
		media := *input.Media
		d.Media = &media
	}
	s.dossiers[d.ID] = d

	// One broadcast record; friend-scoped visibility is derived at read
	// time against the contact graph, never fanned out per friend.
	s.notifyLocked(RecipientAll, author+" published a new dossier", NotifNewPostFriend, author, now)
	s.publish(EventNewDossier, d)

	cp := *d
	return &cp, nil
}

func (s *Store) UpdateDossier(input UpdateDossierInput) (*Dossier, error) {
	editor := strings.TrimSpace(input.Editor)
	if editor == "" {
		return nil, newError(CodeInvalidInput, "editor is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.dossierLocked(input.ID)
	if err != nil {
		return nil, err
	}
	if d.Author != editor {
		return nil, newError(CodeForbidden, "only the author can edit a dossier")
	}
	if input.Title != nil {
		d.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		d.Description = strings.TrimSpace(*input.Description)
		d.DescriptionHTML = renderDescriptionHTML(d.Description)
	}
	if input.Media != nil {
		if input.Media.Type != MediaImage && input.Media.Type != MediaVideo {
			return nil, newError(CodeInvalidInput, "media type must be image or video")
		}
		media := *input.Media
		d.Media = &media
	}
	if d.Title == "" && d.Description == "" {
		return nil, newError(CodeInvalidInput, "dossier needs a title or a description")
	}

	s.publish(EventUpdateDossier, d)
	cp := *d
	return &cp, nil
}

// DeleteDossier removes a dossier; allowed for its author or a configured
// admin. Admin removal additionally notifies the author.
func (s *Store) DeleteDossier(id int64, requester string) error {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return newError(CodeInvalidInput, "requester is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.dossierLocked(id)
	if err != nil {
		return err
	}
	if d.Author != requester && !s.isAdmin(requester) {
		return newError(CodeForbidden, "only the author or an admin can delete a dossier")
	}
	delete(s.dossiers, id)

	if d.Author != requester {
		s.notifyLocked(d.Author, "An admin removed your dossier \""+d.Title+"\"", NotifAdminAction, requester, now)
	}
	s.publish(EventDeleteDossier, map[string]any{"id": id})
	return nil
}

func (s *Store) LikeDossier(id int64, agent string) (*Dossier, error) {
	return s.rateDossier(id, agent, false)
}

func (s *Store) DislikeDossier(id int64, agent string) (*Dossier, error) {
	return s.rateDossier(id, agent, true)
}

// rateDossier applies toggle semantics; a like removes an existing dislike
// by the same agent and vice versa. The author is notified on add only,
// never on remove and never on self.
func (s *Store) rateDossier(id int64, agent string, dislike bool) (*Dossier, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, newError(CodeInvalidInput, "agent is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.dossierLocked(id)
	if err != nil {
		return nil, err
	}
	if !s.agentExistsLocked(agent) {
		return nil, newError(CodeNotFound, "unknown agent: "+agent)
	}

	target, other := &d.Likes, &d.Dislikes
	notifType := NotifLikeDossier
	if dislike {
		target, other = &d.Dislikes, &d.Likes
		notifType = NotifDislikeDossier
	}

	added := false
	if contains(*target, agent) {
		*target = remove(*target, agent)
	} else {
		*other = remove(*other, agent)
		*target = append(*target, agent)
		added = true
	}

	if added && d.Author != agent {
		verb := "liked"
		if dislike {
			verb = "disliked"
		}
		s.notifyLocked(d.Author, agent+" "+verb+" your dossier \""+d.Title+"\"", notifType, agent, now)
	}
	s.publish(EventUpdateDossierLikes, map[string]any{
		"id":       d.ID,
		"likes":    d.Likes,
		"dislikes": d.Dislikes,
	})

	cp := *d
	return &cp, nil
}

func (s *Store) RepostDossier(id int64, agent string) (*Dossier, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, newError(CodeInvalidInput, "agent is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.dossierLocked(id)
	if err != nil {
		return nil, err
	}
	if d.Author == agent {
		return nil, newError(CodeForbidden, "cannot repost your own dossier")
	}
	for _, r := range d.Reposts {
		if r.Agent == agent {
			return nil, newError(CodeConflict, "you already reposted this dossier")
		}
	}

	d.Reposts = append(d.Reposts, Repost{Agent: agent, Timestamp: now})
	s.notifyLocked(d.Author, agent+" reposted your dossier \""+d.Title+"\"", NotifRepostDossier, agent, now)
	s.publish(EventUpdateDossierReposts, map[string]any{
		"id":      d.ID,
		"reposts": d.Reposts,
	})

	cp := *d
	return &cp, nil
}

func (s *Store) AddComment(dossierID int64, author, text string) (*Comment, error) {
	author = strings.TrimSpace(author)
	text = strings.TrimSpace(text)
	if author == "" {
		return nil, newError(CodeInvalidInput, "author is required")
	}
	if text == "" {
		return nil, newError(CodeInvalidInput, "comment text is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.dossierLocked(dossierID)
	if err != nil {
		return nil, err
	}
	if !s.agentExistsLocked(author) {
		return nil, newError(CodeNotFound, "unknown author: "+author)
	}

	c := Comment{
		ID:        s.nextIDLocked(now),
		Author:    author,
		Text:      text,
		Timestamp: now,
		Likes:     []string{},
		Replies:   []Reply{},
	}
	d.Comments = append(d.Comments, c)

	if d.Author != author {
		s.notifyLocked(d.Author, author+" commented on your dossier \""+d.Title+"\"", NotifNewCommentDossier, author, now)
	}
	s.publish(EventNewComment, map[string]any{
		"dossierId": d.ID,
		"comment":   c,
	})

	cp := c
	return &cp, nil
}

func (s *Store) ReplyToComment(commentID int64, author, text string) (*Comment, error) {
	author = strings.TrimSpace(author)
	text = strings.TrimSpace(text)
	if author == "" || text == "" {
		return nil, newError(CodeInvalidInput, "author and text are required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, c := s.findCommentLocked(commentID)
	if c == nil {
		return nil, newError(CodeNotFound, "comment not found")
	}

	c.Replies = append(c.Replies, Reply{
		ID:        s.nextIDLocked(now),
		Author:    author,
		Text:      text,
		Timestamp: now,
	})

	if c.Author != author {
		s.notifyLocked(c.Author, author+" replied to your comment", NotifReplyComment, author, now)
	}
	s.publish(EventUpdateComment, map[string]any{
		"dossierId": d.ID,
		"comment":   *c,
	})

	cp := *c
	return &cp, nil
}

func (s *Store) EditComment(commentID int64, editor, text string) (*Comment, error) {
	editor = strings.TrimSpace(editor)
	text = strings.TrimSpace(text)
	if editor == "" || text == "" {
		return nil, newError(CodeInvalidInput, "editor and text are required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, c := s.findCommentLocked(commentID)
	if c == nil {
		return nil, newError(CodeNotFound, "comment not found")
	}
	if c.Author != editor {
		return nil, newError(CodeForbidden, "only the comment author can edit it")
	}

	c.Text = text
	if d.Author != editor {
		s.notifyLocked(d.Author, editor+" edited a comment on your dossier \""+d.Title+"\"", NotifEditComment, editor, now)
	}
	s.publish(EventUpdateComment, map[string]any{
		"dossierId": d.ID,
		"comment":   *c,
	})

	cp := *c
	return &cp, nil
}

func (s *Store) DeleteComment(commentID int64, requester string) error {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return newError(CodeInvalidInput, "requester is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, c := s.findCommentLocked(commentID)
	if c == nil {
		return newError(CodeNotFound, "comment not found")
	}
	if c.Author != requester && d.Author != requester && !s.isAdmin(requester) {
		return newError(CodeForbidden, "not allowed to delete this comment")
	}

	commentAuthor := c.Author
	for i := range d.Comments {
		if d.Comments[i].ID == commentID {
			d.Comments = append(d.Comments[:i], d.Comments[i+1:]...)
			break
		}
	}

	if commentAuthor != requester {
		s.notifyLocked(commentAuthor, "Your comment on \""+d.Title+"\" was removed", NotifDeleteComment, requester, now)
	}
	s.publish(EventDeleteComment, map[string]any{
		"dossierId": d.ID,
		"commentId": commentID,
	})
	return nil
}

func (s *Store) LikeComment(commentID int64, agent string) (*Comment, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, newError(CodeInvalidInput, "agent is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	d, c := s.findCommentLocked(commentID)
	if c == nil {
		return nil, newError(CodeNotFound, "comment not found")
	}

	added := false
	if contains(c.Likes, agent) {
		c.Likes = remove(c.Likes, agent)
	} else {
		c.Likes = append(c.Likes, agent)
		added = true
	}

	if added && c.Author != agent {
		s.notifyLocked(c.Author, agent+" liked your comment", NotifLikeComment, agent, now)
	}
	s.publish(EventUpdateCommentLikes, map[string]any{
		"dossierId": d.ID,
		"commentId": c.ID,
		"likes":     c.Likes,
	})

	cp := *c
	return &cp, nil
}

// ListDossiers returns the feed newest first.
func (s *Store) ListDossiers() []Dossier {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Dossier, 0, len(s.dossiers))
	for _, d := range s.dossiers {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) GetDossier(id int64) (*Dossier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.dossierLocked(id)
	if err != nil {
		return nil, err
	}
	cp := *d
	return &cp, nil
}
