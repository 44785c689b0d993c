package requests

// CreateConversationRequest resolves or creates the conversation between two
// users; participant order does not matter.
type CreateConversationRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	OtherUserID string `json:"other_user_id" binding:"required"`
}

// AttachmentPayload carries inline attachment metadata for JSON sends. The
// data field is base64 encoded.
type AttachmentPayload struct {
	Name     string `json:"name"`
	Data     []byte `json:"data" binding:"required"`
	MimeType string `json:"mime_type,omitempty"`
}

// SendMessageRequest appends a message to a conversation. Content may be
// empty only when an attachment is present.
type SendMessageRequest struct {
	SenderID   string             `json:"sender_id" binding:"required"`
	Content    string             `json:"content"`
	Attachment *AttachmentPayload `json:"attachment,omitempty"`
}

// MarkReadRequest resets the caller's unread counter for a conversation.
type MarkReadRequest struct {
	UserID string `json:"user_id" binding:"required"`
}
