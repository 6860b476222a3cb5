package agency

import (
	"sort"
	"sync"
	"time"

	"github.com/Yuzori/l-Agence/internal/docstore"
	"github.com/Yuzori/l-Agence/internal/logger"
)

// Logical document names. Contacts and conversations share the messages
// document so accept-and-create-conversation commits as one write.
const (
	docAgents        = "agents"
	docDossiers      = "dossiers"
	docNotifications = "notifications"
	docMessages      = "messages"
)

type agentsDoc struct {
	Agents []Agent `json:"agents"`
}

type dossiersDoc struct {
	Dossiers []Dossier `json:"dossiers"`
}

type notificationsDoc struct {
	Notifications []Notification `json:"notifications"`
}

type messagesDoc struct {
	Contacts      []ContactRecord `json:"contacts"`
	Conversations []Conversation  `json:"conversations"`
}

// PersistentStore wraps the in-memory Store with write-through persistence
// of the four logical JSON documents. A failed write is reported to the
// caller and the in-memory state is reloaded from the last durable copy.
type PersistentStore struct {
	inner *Store
	docs  *docstore.Store
	mu    sync.Mutex
}

func NewPersistentStore(docs *docstore.Store, cfg Config) (*PersistentStore, error) {
	p := &PersistentStore{
		inner: NewStore(cfg),
		docs:  docs,
	}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PersistentStore) reload() error {
	var agents agentsDoc
	var dossiers dossiersDoc
	var notifications notificationsDoc
	var messages messagesDoc
	if err := p.docs.Load(docAgents, &agents); err != nil {
		return err
	}
	if err := p.docs.Load(docDossiers, &dossiers); err != nil {
		return err
	}
	if err := p.docs.Load(docNotifications, &notifications); err != nil {
		return err
	}
	if err := p.docs.Load(docMessages, &messages); err != nil {
		return err
	}

	s := p.inner
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents = map[string]*Agent{}
	for _, a := range agents.Agents {
		cp := a
		s.agents[a.Name] = &cp
	}
	s.dossiers = map[int64]*Dossier{}
	for _, d := range dossiers.Dossiers {
		cp := d
		s.dossiers[d.ID] = &cp
	}
	s.notifications = map[int64]*Notification{}
	for _, n := range notifications.Notifications {
		cp := n
		s.notifications[n.ID] = &cp
	}
	s.contacts = map[int64]*ContactRecord{}
	for _, r := range messages.Contacts {
		cp := r
		s.contacts[r.ID] = &cp
	}
	s.conversations = map[int64]*Conversation{}
	for _, c := range messages.Conversations {
		cp := c
		s.conversations[c.ID] = &cp
	}

	// Ids are creation-time derived; the counter resumes from the highest
	// id seen on disk.
	s.lastID = 0
	bump := func(id int64) {
		if id > s.lastID {
			s.lastID = id
		}
	}
	for id, d := range s.dossiers {
		bump(id)
		for _, c := range d.Comments {
			bump(c.ID)
			for _, r := range c.Replies {
				bump(r.ID)
			}
		}
	}
	for id := range s.notifications {
		bump(id)
	}
	for id := range s.contacts {
		bump(id)
	}
	for id, c := range s.conversations {
		bump(id)
		for _, m := range c.Messages {
			bump(m.ID)
		}
	}
	return nil
}

func (p *PersistentStore) snapshotAgents() agentsDoc {
	s := p.inner
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := agentsDoc{Agents: []Agent{}}
	for _, a := range s.agents {
		doc.Agents = append(doc.Agents, *a)
	}
	sort.Slice(doc.Agents, func(i, j int) bool { return doc.Agents[i].Name < doc.Agents[j].Name })
	return doc
}

func (p *PersistentStore) snapshotDossiers() dossiersDoc {
	s := p.inner
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := dossiersDoc{Dossiers: []Dossier{}}
	for _, d := range s.dossiers {
		doc.Dossiers = append(doc.Dossiers, *d)
	}
	sort.Slice(doc.Dossiers, func(i, j int) bool { return doc.Dossiers[i].ID < doc.Dossiers[j].ID })
	return doc
}

func (p *PersistentStore) snapshotNotifications() notificationsDoc {
	s := p.inner
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := notificationsDoc{Notifications: []Notification{}}
	for _, n := range s.notifications {
		doc.Notifications = append(doc.Notifications, *n)
	}
	sort.Slice(doc.Notifications, func(i, j int) bool { return doc.Notifications[i].ID < doc.Notifications[j].ID })
	return doc
}

func (p *PersistentStore) snapshotMessages() messagesDoc {
	s := p.inner
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := messagesDoc{Contacts: []ContactRecord{}, Conversations: []Conversation{}}
	for _, r := range s.contacts {
		doc.Contacts = append(doc.Contacts, *r)
	}
	for _, c := range s.conversations {
		doc.Conversations = append(doc.Conversations, *c)
	}
	sort.Slice(doc.Contacts, func(i, j int) bool { return doc.Contacts[i].ID < doc.Contacts[j].ID })
	sort.Slice(doc.Conversations, func(i, j int) bool { return doc.Conversations[i].ID < doc.Conversations[j].ID })
	return doc
}

func (p *PersistentStore) persist(names ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range names {
		var err error
		switch name {
		case docAgents:
			err = p.docs.Save(name, p.snapshotAgents())
		case docDossiers:
			err = p.docs.Save(name, p.snapshotDossiers())
		case docNotifications:
			err = p.docs.Save(name, p.snapshotNotifications())
		case docMessages:
			err = p.docs.Save(name, p.snapshotMessages())
		}
		if err != nil {
			logger.Error("persist_failed", "document", name, "error", err)
			if rerr := p.reload(); rerr != nil {
				logger.Error("persist_rollback_failed", "document", name, "error", rerr)
			}
			if p.inner.cfg.OnPersistError != nil {
				p.inner.cfg.OnPersistError()
			}
			return NewInternalError("failed to persist " + name)
		}
	}
	return nil
}

// --- agency.API implementation ---

func (p *PersistentStore) SeedAgents(agents []Agent) error {
	if err := p.inner.SeedAgents(agents); err != nil {
		return err
	}
	return p.persist(docAgents)
}

func (p *PersistentStore) ListAgents() []Agent {
	return p.inner.ListAgents()
}

func (p *PersistentStore) RequestContact(sender, recipient string) (*ContactRecord, error) {
	out, err := p.inner.RequestContact(sender, recipient)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docMessages, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) AcceptContact(contactID int64, acceptor string) (*ContactRecord, error) {
	out, err := p.inner.AcceptContact(contactID, acceptor)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docMessages, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) DeclineContact(contactID int64, decliner string) (*ContactRecord, error) {
	out, err := p.inner.DeclineContact(contactID, decliner)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docMessages, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) ListContacts(agent string) ([]ContactRecord, error) {
	return p.inner.ListContacts(agent)
}

func (p *PersistentStore) IsAcceptedFriend(a, b string) bool {
	return p.inner.IsAcceptedFriend(a, b)
}

func (p *PersistentStore) GetConversation(a, b string) ([]Message, error) {
	return p.inner.GetConversation(a, b)
}

func (p *PersistentStore) SendMessage(input SendMessageInput) (*Message, error) {
	out, err := p.inner.SendMessage(input)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docMessages, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) React(messageID int64, agent, emoji string) ([]Reaction, error) {
	out, err := p.inner.React(messageID, agent, emoji)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docMessages, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) Notify(recipient, message string, typ NotificationType, originAuthor string) (*Notification, error) {
	out, err := p.inner.Notify(recipient, message, typ, originAuthor)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) ListNotifications(agent string) ([]NotificationView, error) {
	return p.inner.ListNotifications(agent)
}

func (p *PersistentStore) MarkRead(notificationID int64, agent string) error {
	if err := p.inner.MarkRead(notificationID, agent); err != nil {
		return err
	}
	return p.persist(docNotifications)
}

func (p *PersistentStore) MarkAllRead(agent string) error {
	if err := p.inner.MarkAllRead(agent); err != nil {
		return err
	}
	return p.persist(docNotifications)
}

func (p *PersistentStore) DeleteNotification(id int64) error {
	if err := p.inner.DeleteNotification(id); err != nil {
		return err
	}
	return p.persist(docNotifications)
}

func (p *PersistentStore) PruneReadBroadcasts(maxAge time.Duration) (int, error) {
	pruned, err := p.inner.PruneReadBroadcasts(maxAge)
	if err != nil || pruned == 0 {
		return pruned, err
	}
	return pruned, p.persist(docNotifications)
}

func (p *PersistentStore) CreateDossier(input CreateDossierInput) (*Dossier, error) {
	out, err := p.inner.CreateDossier(input)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) UpdateDossier(input UpdateDossierInput) (*Dossier, error) {
	out, err := p.inner.UpdateDossier(input)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) DeleteDossier(id int64, requester string) error {
	if err := p.inner.DeleteDossier(id, requester); err != nil {
		return err
	}
	return p.persist(docDossiers, docNotifications)
}

func (p *PersistentStore) LikeDossier(id int64, agent string) (*Dossier, error) {
	out, err := p.inner.LikeDossier(id, agent)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) DislikeDossier(id int64, agent string) (*Dossier, error) {
	out, err := p.inner.DislikeDossier(id, agent)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) RepostDossier(id int64, agent string) (*Dossier, error) {
	out, err := p.inner.RepostDossier(id, agent)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) AddComment(dossierID int64, author, text string) (*Comment, error) {
	out, err := p.inner.AddComment(dossierID, author, text)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) ReplyToComment(commentID int64, author, text string) (*Comment, error) {
	out, err := p.inner.ReplyToComment(commentID, author, text)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) EditComment(commentID int64, editor, text string) (*Comment, error) {
	out, err := p.inner.EditComment(commentID, editor, text)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) DeleteComment(commentID int64, requester string) error {
	if err := p.inner.DeleteComment(commentID, requester); err != nil {
		return err
	}
	return p.persist(docDossiers, docNotifications)
}

func (p *PersistentStore) LikeComment(commentID int64, agent string) (*Comment, error) {
	out, err := p.inner.LikeComment(commentID, agent)
	if err != nil {
		return nil, err
	}
	if perr := p.persist(docDossiers, docNotifications); perr != nil {
		return nil, perr
	}
	return out, nil
}

func (p *PersistentStore) ListDossiers() []Dossier {
	return p.inner.ListDossiers()
}

func (p *PersistentStore) GetDossier(id int64) (*Dossier, error) {
	return p.inner.GetDossier(id)
}

func (p *PersistentStore) Health() map[string]any {
	return p.inner.Health()
}

var _ API = (*PersistentStore)(nil)
