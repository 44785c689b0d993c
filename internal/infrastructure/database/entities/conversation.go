package entities

import (
	"time"

	"fitloop-server/services/chat-api/internal/domain/chat"
)

// Conversation represents the database schema for conversation summaries.
// The participant pair is stored lexicographically sorted so the composite
// unique index enforces at most one conversation per unordered pair.
type Conversation struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID           string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	ParticipantLo      string    `gorm:"type:varchar(64);uniqueIndex:idx_conversation_pair;not null"`
	ParticipantHi      string    `gorm:"type:varchar(64);uniqueIndex:idx_conversation_pair;not null"`
	LastMessagePreview string    `gorm:"type:varchar(256);not null;default:''"`
	LastActivityAt     time.Time `gorm:"index;not null"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID"`
}

// TableName specifies the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant holds one participant's membership and unread
// counter. The counter is only ever mutated with in-place SQL arithmetic.
type ConversationParticipant struct {
	ID             uint      `gorm:"primaryKey"`
	ConversationID uint      `gorm:"uniqueIndex:idx_participant_conversation;index:idx_participant_user,priority:2;not null"`
	UserID         string    `gorm:"type:varchar(64);uniqueIndex:idx_participant_conversation;index:idx_participant_user,priority:1;not null"`
	UnreadCount    int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ConversationParticipant.
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// EtoD converts database entity to domain model.
func (c *Conversation) EtoD() *chat.Conversation {
	participants := make([]string, 0, len(c.Participants))
	unread := make(map[string]int, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, p.UserID)
		unread[p.UserID] = p.UnreadCount
	}

	return &chat.Conversation{
		ID:                 c.ID,
		PublicID:           c.PublicID,
		Participants:       participants,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt,
		Unread:             unread,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

// NewSchemaConversation creates a database entity from domain model.
func NewSchemaConversation(c *chat.Conversation) *Conversation {
	lo, hi := c.Participants[0], c.Participants[1]
	if lo > hi {
		lo, hi = hi, lo
	}

	participants := make([]ConversationParticipant, 0, len(c.Participants))
	for _, userID := range c.Participants {
		participants = append(participants, ConversationParticipant{
			UserID:      userID,
			UnreadCount: c.Unread[userID],
		})
	}

	return &Conversation{
		ID:                 c.ID,
		PublicID:           c.PublicID,
		ParticipantLo:      lo,
		ParticipantHi:      hi,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt,
		Participants:       participants,
	}
}
