package agency

import "time"

// API is the storage/service interface used by the HTTP layer.
// It allows swapping in-memory, JSON-document, and SQLite implementations.
type API interface {
	SeedAgents(agents []Agent) error
	ListAgents() []Agent

	RequestContact(sender, recipient string) (*ContactRecord, error)
	AcceptContact(contactID int64, acceptor string) (*ContactRecord, error)
	DeclineContact(contactID int64, decliner string) (*ContactRecord, error)
	ListContacts(agent string) ([]ContactRecord, error)
	IsAcceptedFriend(a, b string) bool

	GetConversation(a, b string) ([]Message, error)
	SendMessage(input SendMessageInput) (*Message, error)
	React(messageID int64, agent, emoji string) ([]Reaction, error)

	Notify(recipient, message string, typ NotificationType, originAuthor string) (*Notification, error)
	ListNotifications(agent string) ([]NotificationView, error)
	MarkRead(notificationID int64, agent string) error
	MarkAllRead(agent string) error
	DeleteNotification(id int64) error
	PruneReadBroadcasts(maxAge time.Duration) (int, error)

	CreateDossier(input CreateDossierInput) (*Dossier, error)
	UpdateDossier(input UpdateDossierInput) (*Dossier, error)
	DeleteDossier(id int64, requester string) error
	LikeDossier(id int64, agent string) (*Dossier, error)
	DislikeDossier(id int64, agent string) (*Dossier, error)
	RepostDossier(id int64, agent string) (*Dossier, error)
	AddComment(dossierID int64, author, text string) (*Comment, error)
	ReplyToComment(commentID int64, author, text string) (*Comment, error)
	EditComment(commentID int64, editor, text string) (*Comment, error)
	DeleteComment(commentID int64, requester string) error
	LikeComment(commentID int64, agent string) (*Comment, error)
	ListDossiers() []Dossier
	GetDossier(id int64) (*Dossier, error)

	Health() map[string]any
}
