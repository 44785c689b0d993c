package responses

import (
	"time"

	"fitloop-server/services/chat-api/internal/domain/chat"
)

// ConversationResponse is the wire shape of a conversation summary.
type ConversationResponse struct {
	ID                 string         `json:"id"`
	ParticipantIDs     []string       `json:"participant_ids"`
	LastMessagePreview string         `json:"last_message_preview"`
	LastActivityAt     time.Time      `json:"last_activity_at"`
	Unread             map[string]int `json:"unread"`
	CreatedAt          time.Time      `json:"created_at"`
}

// AttachmentResponse mirrors the stored attachment metadata.
type AttachmentResponse struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MimeType  string `json:"type"`
	SizeBytes int64  `json:"size"`
}

// MessageResponse is the wire shape of a message.
type MessageResponse struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	Content        string               `json:"content"`
	Attachments    []AttachmentResponse `json:"attachments,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// SendMessageResponse wraps a stored message plus an optional warning when a
// dependent summary update did not land.
type SendMessageResponse struct {
	Message *MessageResponse `json:"message"`
	Warning string           `json:"warning,omitempty"`
}

// ConversationListResponse wraps a user's conversation list.
type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// MessageListResponse wraps a conversation's message page.
type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// MapConversationToResponse converts a domain conversation.
func MapConversationToResponse(c *chat.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                 c.PublicID,
		ParticipantIDs:     c.Participants,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt,
		Unread:             c.Unread,
		CreatedAt:          c.CreatedAt,
	}
}

// MapConversationsToResponse converts a conversation list.
func MapConversationsToResponse(convs []*chat.Conversation) ConversationListResponse {
	out := ConversationListResponse{Conversations: make([]ConversationResponse, 0, len(convs))}
	for _, c := range convs {
		out.Conversations = append(out.Conversations, MapConversationToResponse(c))
	}
	return out
}

// MapMessageToResponse converts a domain message.
func MapMessageToResponse(m *chat.Message) MessageResponse {
	resp := MessageResponse{
		ID:             m.PublicID,
		ConversationID: m.ConversationPublicID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
	for _, a := range m.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentResponse{
			Name:      a.Name,
			URL:       a.URL,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
		})
	}
	return resp
}

// MapMessagesToResponse converts a message list.
func MapMessagesToResponse(msgs []*chat.Message) MessageListResponse {
	out := MessageListResponse{Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, MapMessageToResponse(m))
	}
	return out
}
