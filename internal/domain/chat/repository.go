package chat

import (
	"context"
	"io"
	"time"
)

// ConversationRepository persists conversation summaries and unread counters.
type ConversationRepository interface {
	// Create inserts the conversation. A duplicate participant pair yields a
	// CONFLICT platform error so callers can re-resolve the winner.
	Create(ctx context.Context, conversation *Conversation) error
	FindByPublicID(ctx context.Context, publicID string) (*Conversation, error)
	// FindByParticipants resolves the canonical unordered pair; returns
	// (nil, nil) when no conversation exists yet.
	FindByParticipants(ctx context.Context, userA, userB string) (*Conversation, error)
	// ListByUser returns the user's conversations ordered by last activity,
	// most recent first.
	ListByUser(ctx context.Context, userID string) ([]*Conversation, error)
	// RecordActivity updates the summary fields and atomically increments the
	// recipient's unread counter by one. The increment must happen in the
	// store, never as an application-side read-modify-write.
	RecordActivity(ctx context.Context, conversationID uint, preview string, at time.Time, recipientID string) error
	// ResetUnread sets the participant's unread counter to zero.
	ResetUnread(ctx context.Context, conversationID uint, userID string) error
}

// MessageRepository is the append-only message log.
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	// ListByConversationID returns messages in created-at ascending order.
	// limit <= 0 means no limit.
	ListByConversationID(ctx context.Context, conversationID uint, limit int) ([]*Message, error)
}

// AttachmentStore uploads a blob and returns its durable public URL.
type AttachmentStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// Broadcaster fans events out to topic subscribers. Delivery is best-effort
// at-least-once; errors are for logging only and never fail the request path.
type Broadcaster interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}
