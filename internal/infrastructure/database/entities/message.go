package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"fitloop-server/services/chat-api/internal/domain/chat"
)

// Message stores one entry of the append-only message log. Attachments are
// embedded metadata (jsonb); the blobs live in the attachment store.
type Message struct {
	ID             uint           `gorm:"primaryKey"`
	PublicID       string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	ConversationID uint           `gorm:"index:idx_message_conversation_created,priority:1;not null"`
	Conversation   Conversation   `gorm:"foreignKey:ConversationID"`
	SenderID       string         `gorm:"type:varchar(64);not null"`
	Content        string         `gorm:"type:text;not null;default:''"`
	Attachments    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"index:idx_message_conversation_created,priority:2;not null"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// EtoD converts database entity to domain model.
func (m *Message) EtoD() (*chat.Message, error) {
	var attachments []chat.Attachment
	if len(m.Attachments) > 0 {
		if err := json.Unmarshal(m.Attachments, &attachments); err != nil {
			return nil, err
		}
	}

	return &chat.Message{
		ID:                   m.ID,
		PublicID:             m.PublicID,
		ConversationID:       m.ConversationID,
		ConversationPublicID: m.Conversation.PublicID,
		SenderID:             m.SenderID,
		Content:              m.Content,
		Attachments:          attachments,
		CreatedAt:            m.CreatedAt,
	}, nil
}

// NewSchemaMessage creates a database entity from domain model.
func NewSchemaMessage(m *chat.Message) (*Message, error) {
	var attachments datatypes.JSON
	if len(m.Attachments) > 0 {
		raw, err := json.Marshal(m.Attachments)
		if err != nil {
			return nil, err
		}
		attachments = datatypes.JSON(raw)
	}

	return &Message{
		ID:             m.ID,
		PublicID:       m.PublicID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt,
	}, nil
}
