package agency

import "time"

// RecipientAll addresses a notification to every agent on the roster.
// Per-agent read state for these records lives in ReadBy.
const RecipientAll = "all"

type ContactStatus string

const (
	ContactPending  ContactStatus = "pending"
	ContactAccepted ContactStatus = "accepted"
	ContactDeclined ContactStatus = "declined"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// NotificationType is a closed enum; unknown values are rejected at the
// transport boundary by ParseNotificationType.
type NotificationType string

const (
	NotifGeneral           NotificationType = "general"
	NotifAdminAction       NotificationType = "admin_action"
	NotifLikeDossier       NotificationType = "like_dossier"
	NotifDislikeDossier    NotificationType = "dislike_dossier"
	NotifRepostDossier     NotificationType = "repost_dossier"
	NotifNewCommentDossier NotificationType = "new_comment_dossier"
	NotifReplyComment      NotificationType = "reply_comment"
	NotifEditComment       NotificationType = "edit_comment"
	NotifDeleteComment     NotificationType = "delete_comment"
	NotifLikeComment       NotificationType = "like_comment"
	NotifContactRequest    NotificationType = "contact_request"
	NotifContactAccepted   NotificationType = "contact_accepted"
	NotifContactDeclined   NotificationType = "contact_declined"
	NotifNewMessage        NotificationType = "new_message"
	NotifMessageReaction   NotificationType = "message_reaction"
	NotifNewPostFriend     NotificationType = "new_post_friend"
)

var notificationTypes = map[NotificationType]struct{}{
	NotifGeneral: {}, NotifAdminAction: {}, NotifLikeDossier: {},
	NotifDislikeDossier: {}, NotifRepostDossier: {}, NotifNewCommentDossier: {},
	NotifReplyComment: {}, NotifEditComment: {}, NotifDeleteComment: {},
	NotifLikeComment: {}, NotifContactRequest: {}, NotifContactAccepted: {},
	NotifContactDeclined: {}, NotifNewMessage: {}, NotifMessageReaction: {},
	NotifNewPostFriend: {},
}

// ParseNotificationType validates a wire value against the closed enum.
func ParseNotificationType(raw string) (NotificationType, bool) {
	t := NotificationType(raw)
	_, ok := notificationTypes[t]
	return t, ok
}

// Realtime event names pushed through the gateway.
const (
	EventNewDossier              = "new_dossier"
	EventUpdateDossier           = "update_dossier"
	EventDeleteDossier           = "delete_dossier"
	EventUpdateDossierLikes      = "update_dossier_likes"
	EventUpdateDossierReposts    = "update_dossier_reposts"
	EventNewComment              = "new_comment"
	EventUpdateComment           = "update_comment"
	EventDeleteComment           = "delete_comment"
	EventUpdateCommentLikes      = "update_comment_likes"
	EventNewNotification         = "new_notification"
	EventDeleteNotification      = "delete_notification_client"
	EventDeleteAllNotifications  = "delete_all_notifications_client"
	EventContactRequestReceived  = "contact_request_received"
	EventContactAccepted         = "contact_accepted_event"
	EventContactDeclined         = "contact_declined_event"
	EventNewPrivateMessage       = "new_private_message"
	EventMessageReactionUpdate   = "message_reaction_update"
)

// Agent is a roster identity. Codes are bootstrap credentials and are never
// serialized out of the store.
type Agent struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Media is a caller-supplied attachment reference; upload handling lives
// outside this subsystem.
type Media struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// ContactRecord is a pairwise relationship. Agent1 is the initiator and
// Agent2 the invited party; lookups treat the pair as unordered.
type ContactRecord struct {
	ID         int64         `json:"id"`
	Agent1     string        `json:"agent1"`
	Agent2     string        `json:"agent2"`
	Status     ContactStatus `json:"status"`
	Initiator  string        `json:"initiator"`
	Timestamp  int64         `json:"timestamp"`
	AcceptedAt int64         `json:"acceptedAt,omitempty"`
}

type Reaction struct {
	Agent string `json:"agent"`
	Emoji string `json:"emoji"`
}

type Message struct {
	ID                    int64      `json:"id"`
	Sender                string     `json:"sender"`
	Text                  *string    `json:"text"`
	Media                 *Media     `json:"media,omitempty"`
	Timestamp             time.Time  `json:"timestamp"`
	Reactions             []Reaction `json:"reactions"`
	TransferFromMessageID int64      `json:"transferFromMessageId,omitempty"`
}

// Conversation is a pairwise message thread, created exactly once when a
// contact request is accepted.
type Conversation struct {
	ID           int64     `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
}

type Notification struct {
	ID           int64            `json:"id"`
	Recipient    string           `json:"recipient"`
	Message      string           `json:"message"`
	Timestamp    time.Time        `json:"timestamp"`
	Type         NotificationType `json:"type"`
	OriginAuthor string           `json:"originAuthor,omitempty"`
	ReadBy       []string         `json:"readBy"`
}

// NotificationView is a Notification plus the transient per-requester read
// flag; the flag is never persisted.
type NotificationView struct {
	Notification
	Read bool `json:"read"`
}

type Reply struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Likes     []string  `json:"likes"`
	Replies   []Reply   `json:"replies"`
}

type Repost struct {
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
}

type Dossier struct {
	ID              int64     `json:"id"`
	Author          string    `json:"author"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DescriptionHTML string    `json:"descriptionHTML"`
	Media           *Media    `json:"media,omitempty"`
	Likes           []string  `json:"likes"`
	Dislikes        []string  `json:"dislikes"`
	Reposts         []Repost  `json:"reposts"`
	Comments        []Comment `json:"comments"`
	Timestamp       time.Time `json:"timestamp"`
}

type SendMessageInput struct {
	Sender    string
	Recipient string
	Text      string
	Media     *Media
}

type CreateDossierInput struct {
	Author      string
	Title       string
	Description string
	Media       *Media
}

type UpdateDossierInput struct {
	ID          int64
	Editor      string
	Title       *string
	Description *string
	Media       *Media
}
