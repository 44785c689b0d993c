package chat

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"fitloop-server/services/chat-api/internal/config"
	"fitloop-server/services/chat-api/internal/infrastructure/metrics"
	"fitloop-server/services/chat-api/internal/infrastructure/observability"
	"fitloop-server/services/chat-api/internal/utils/chatid"
	"fitloop-server/services/chat-api/internal/utils/platformerrors"
)

// attachmentPlaceholder is the preview label for attachment-only messages.
const attachmentPlaceholder = "[attachment]"

// AttachmentUpload carries the raw blob of an outgoing attachment.
type AttachmentUpload struct {
	Name     string
	Data     []byte
	MimeType string
}

// SendMessageInput carries a validated send request into the pipeline.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Attachment     *AttachmentUpload
}

// Service is the chat session and messaging engine. It owns conversation
// resolution, the message ingestion pipeline, unread bookkeeping and the
// broadcast fan-out contract.
type Service interface {
	ResolveOrCreate(ctx context.Context, userA, userB string) (*Conversation, bool, error)
	SendMessage(ctx context.Context, in SendMessageInput) (*Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
}

// ServiceImpl implements Service on top of the repositories, the attachment
// store and the broadcaster.
type ServiceImpl struct {
	cfg           *config.Config
	conversations ConversationRepository
	messages      MessageRepository
	attachments   AttachmentStore
	broadcaster   Broadcaster
	log           zerolog.Logger
}

func NewService(
	cfg *config.Config,
	conversations ConversationRepository,
	messages MessageRepository,
	attachments AttachmentStore,
	broadcaster Broadcaster,
	log zerolog.Logger,
) *ServiceImpl {
	return &ServiceImpl{
		cfg:           cfg,
		conversations: conversations,
		messages:      messages,
		attachments:   attachments,
		broadcaster:   broadcaster,
		log:           log.With().Str("component", "chat-service").Logger(),
	}
}

// ResolveOrCreate finds the conversation for the unordered participant pair,
// creating it when none exists. The bool result reports whether a new
// conversation was created.
func (s *ServiceImpl) ResolveOrCreate(ctx context.Context, userA, userB string) (*Conversation, bool, error) {
	if err := validateParticipants(ctx, userA, userB); err != nil {
		return nil, false, err
	}

	existing, err := s.conversations.FindByParticipants(ctx, userA, userB)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv := NewConversation(chatid.NewConversation(), userA, userB)
	if err := s.conversations.Create(ctx, conv); err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
			// Lost the first-contact race; the unique pair index guarantees
			// a winner exists, so resolve it instead.
			winner, findErr := s.conversations.FindByParticipants(ctx, userA, userB)
			if findErr == nil && winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, err
	}

	s.publish(ctx, SessionsTopic(), EventCreated, conv)
	metrics.ConversationsCreated.Inc()

	return conv, true, nil
}

// SendMessage runs the ingestion pipeline: optional attachment upload, append
// to the message log, conversation summary update with an atomic unread
// increment, then fan-out on the conversation and recipient inbox topics.
func (s *ServiceImpl) SendMessage(ctx context.Context, in SendMessageInput) (*Message, error) {
	ctx, span := observability.StartSendSpan(ctx, in.ConversationID, in.SenderID)
	defer span.End()

	conv, err := s.conversations.FindByPublicID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeForbidden,
			fmt.Sprintf("sender %s is not a participant of %s", in.SenderID, conv.PublicID),
			nil,
			"c7a1e2d3-9f40-4b8a-8e21-5d6f7a8b9c0d",
		)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" && in.Attachment == nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"message requires content or an attachment",
			nil,
			"d8b2f3e4-0a51-4c9b-9f32-6e7a8b9c0d1e",
		)
	}

	msg := &Message{
		PublicID:             chatid.NewMessage(),
		ConversationID:       conv.ID,
		ConversationPublicID: conv.PublicID,
		SenderID:             in.SenderID,
		Content:              content,
		CreatedAt:            time.Now().UTC(),
	}

	if in.Attachment != nil {
		attachment, err := s.uploadAttachment(ctx, conv.PublicID, msg.PublicID, in.Attachment)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		msg.Attachments = []Attachment{*attachment}
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	metrics.MessagesSent.Inc()

	recipient := conv.Recipient(in.SenderID)
	if err := s.conversations.RecordActivity(ctx, conv.ID, s.preview(msg), msg.CreatedAt, recipient); err != nil {
		// The message is durable; readers of the conversation list may lag
		// behind until the summary converges. Surface the partial failure
		// instead of pretending the send fully succeeded.
		return msg, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypePartialUpdate,
			"message stored but conversation summary update failed",
			err,
			"e9c3a4f5-1b62-4da0-a043-7f8a9b0c1d2f",
		)
	}

	s.publish(ctx, ConversationTopic(conv.PublicID), EventMessage, msg)
	s.publish(ctx, InboxTopic(recipient), EventMessage, msg)

	return msg, nil
}

// MarkRead resets the participant's unread counter to zero and announces the
// reset. The trigger is a client-side heuristic; the signal is accepted
// unconditionally.
func (s *ServiceImpl) MarkRead(ctx context.Context, conversationID, userID string) error {
	conv, err := s.conversations.FindByPublicID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeForbidden,
			fmt.Sprintf("user %s is not a participant of %s", userID, conv.PublicID),
			nil,
			"f0d4b5a6-2c73-4eb1-b154-8a9b0c1d2e30",
		)
	}

	if err := s.conversations.ResetUnread(ctx, conv.ID, userID); err != nil {
		return err
	}

	receipt := ReadReceipt{ConversationID: conv.PublicID, UserID: userID}
	s.publish(ctx, ConversationTopic(conv.PublicID), EventRead, receipt)
	s.publish(ctx, InboxTopic(userID), EventRead, receipt)

	return nil
}

// ListConversations returns the user's conversations, most recent activity
// first.
func (s *ServiceImpl) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"user id is required",
			nil,
			"a1e5c6b7-3d84-4fc2-c265-9b0c1d2e3f41",
		)
	}
	return s.conversations.ListByUser(ctx, userID)
}

// ListMessages returns the conversation's messages in created-at ascending
// order. limit <= 0 falls back to the configured page size.
func (s *ServiceImpl) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	conv, err := s.conversations.FindByPublicID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	return s.messages.ListByConversationID(ctx, conv.ID, limit)
}

func (s *ServiceImpl) uploadAttachment(ctx context.Context, conversationID, messageID string, upload *AttachmentUpload) (*Attachment, error) {
	size := int64(len(upload.Data))
	if size == 0 {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"attachment is empty",
			nil,
			"b2f6d7c8-4e95-40d3-d376-0c1d2e3f4a52",
		)
	}
	if size > s.cfg.MaxAttachmentBytes {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			fmt.Sprintf("attachment exceeds max size of %d bytes", s.cfg.MaxAttachmentBytes),
			nil,
			"c3a7e8d9-5fa6-41e4-e487-1d2e3f4a5b63",
		)
	}

	detected := mimetype.Detect(upload.Data)
	contentType := upload.MimeType
	if contentType == "" {
		contentType = detected.String()
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.cfg.AttachmentTimeout)
	defer cancel()

	key := fmt.Sprintf("attachments/%s/%s%s", conversationID, messageID, detected.Extension())
	url, err := s.attachments.Upload(uploadCtx, key, bytes.NewReader(upload.Data), size, contentType)
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeExternal,
			"attachment upload failed",
			err,
			"d4b8f9ea-6ab7-42f5-f598-2e3f4a5b6c74",
		)
	}
	metrics.AttachmentBytes.Add(float64(size))

	name := upload.Name
	if name == "" {
		name = messageID + detected.Extension()
	}

	return &Attachment{
		Name:      name,
		URL:       url,
		MimeType:  contentType,
		SizeBytes: size,
	}, nil
}

func (s *ServiceImpl) preview(msg *Message) string {
	if msg.Content == "" {
		return attachmentPlaceholder
	}
	runes := []rune(msg.Content)
	if len(runes) <= s.cfg.PreviewLength {
		return msg.Content
	}
	return string(runes[:s.cfg.PreviewLength])
}

func (s *ServiceImpl) publish(ctx context.Context, topic, event string, payload any) {
	if err := s.broadcaster.Publish(ctx, topic, event, payload); err != nil {
		metrics.BroadcastFailures.WithLabelValues(event).Inc()
		s.log.Warn().Err(err).Str("topic", topic).Str("event", event).Msg("broadcast publish failed")
	}
}

func validateParticipants(ctx context.Context, userA, userB string) error {
	if strings.TrimSpace(userA) == "" || strings.TrimSpace(userB) == "" {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"both participant ids are required",
			nil,
			"e5c9aafb-7bc8-4306-a6a9-3f4a5b6c7d85",
		)
	}
	if userA == userB {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"participants must be two distinct users",
			nil,
			"f6daabac-8cd9-4417-b7ba-4a5b6c7d8e96",
		)
	}
	return nil
}
