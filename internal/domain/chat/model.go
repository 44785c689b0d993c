package chat

import (
	"fmt"
	"time"
)

// Conversation is the mutable summary record for a two-party message thread.
type Conversation struct {
	ID                 uint           `json:"-"`
	PublicID           string         `json:"id"`
	Participants       []string       `json:"participant_ids"`
	LastMessagePreview string         `json:"last_message_preview"`
	LastActivityAt     time.Time      `json:"last_activity_at"`
	Unread             map[string]int `json:"unread"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Recipient returns the participant that is not senderID.
func (c *Conversation) Recipient(senderID string) string {
	for _, p := range c.Participants {
		if p != senderID {
			return p
		}
	}
	return ""
}

// Attachment is embedded message metadata; the blob itself lives in the
// attachment store and is only referenced by URL.
type Attachment struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MimeType  string `json:"type"`
	SizeBytes int64  `json:"size"`
}

// Message is one entry in the append-only per-conversation log.
type Message struct {
	ID                   uint         `json:"-"`
	PublicID             string       `json:"id"`
	ConversationID       uint         `json:"-"`
	ConversationPublicID string       `json:"conversation_id"`
	SenderID             string       `json:"sender_id"`
	Content              string       `json:"content"`
	Attachments          []Attachment `json:"attachments,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

// NewConversation builds a conversation summary for a fresh participant pair
// with both unread counters at zero.
func NewConversation(publicID, userA, userB string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		PublicID:       publicID,
		Participants:   []string{userA, userB},
		LastActivityAt: now,
		Unread:         map[string]int{userA: 0, userB: 0},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Broadcast event names. Subscribers must treat deliveries as at-least-once
// and ignore payloads whose message id they already applied.
const (
	EventMessage = "message"
	EventRead    = "read"
	EventCreated = "created"
)

// Topic names are shared between the publisher and the websocket gateway;
// they must stay stable across both sides.
const sessionsTopic = "chat:sessions"

// ConversationTopic is the per-conversation topic for clients viewing it.
func ConversationTopic(conversationID string) string {
	return fmt.Sprintf("chat:conversation:%s", conversationID)
}

// InboxTopic is the per-user topic driving conversation-list views.
func InboxTopic(userID string) string {
	return fmt.Sprintf("chat:inbox:%s", userID)
}

// SessionsTopic is the global topic carrying conversation-creation events.
func SessionsTopic() string {
	return sessionsTopic
}

// ReadReceipt is the payload of a read event.
type ReadReceipt struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}
