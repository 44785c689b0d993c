package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fitloop-server/services/chat-api/internal/domain/chat"
	"fitloop-server/services/chat-api/internal/interfaces/httpserver/requests"
	"fitloop-server/services/chat-api/internal/interfaces/httpserver/responses"
	"fitloop-server/services/chat-api/internal/utils/platformerrors"
)

// ChatHandler exposes HTTP entrypoints for conversations and messages.
type ChatHandler struct {
	service chat.Service
	log     zerolog.Logger
}

// NewChatHandler constructs the handler.
func NewChatHandler(service chat.Service, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		log:     log.With().Str("handler", "chat").Logger(),
	}
}

// CreateConversation handles POST /v1/conversations
// @Summary Resolve or create a conversation
// @Description Returns the conversation between the two users, creating it when none exists
// @Tags Conversations
// @Accept json
// @Produce json
// @Param request body requests.CreateConversationRequest true "Participant pair"
// @Success 200 {object} responses.ConversationResponse
// @Success 201 {object} responses.ConversationResponse
// @Failure 400 {object} responses.ErrorResponse
// @Failure 500 {object} responses.ErrorResponse
// @Router /v1/conversations [post]
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req requests.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "3f2c1d4e-5a6b-4c7d-8e9f-0a1b2c3d4e5f")
		return
	}

	conv, created, err := h.service.ResolveOrCreate(c.Request.Context(), req.UserID, req.OtherUserID)
	if err != nil {
		responses.HandleError(c, err, "failed to resolve conversation")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, responses.MapConversationToResponse(conv))
}

// ListConversations handles GET /v1/users/:user_id/conversations
// @Summary List a user's conversations
// @Description Returns the user's conversations ordered by most recent activity
// @Tags Conversations
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} responses.ConversationListResponse
// @Failure 400 {object} responses.ErrorResponse
// @Failure 500 {object} responses.ErrorResponse
// @Router /v1/users/{user_id}/conversations [get]
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := c.Param("user_id")

	convs, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		responses.HandleError(c, err, "failed to list conversations")
		return
	}

	c.JSON(http.StatusOK, responses.MapConversationsToResponse(convs))
}

// SendMessage handles POST /v1/conversations/:conversation_id/messages
// @Summary Send a message
// @Description Appends a message to the conversation; inline attachments are base64 encoded
// @Tags Messages
// @Accept json
// @Produce json
// @Param conversation_id path string true "Conversation ID"
// @Param request body requests.SendMessageRequest true "Message"
// @Success 200 {object} responses.SendMessageResponse
// @Success 201 {object} responses.SendMessageResponse
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/conversations/{conversation_id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req requests.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "4a3d2e5f-6b7c-4d8e-9f0a-1b2c3d4e5f6a")
		return
	}

	input := chat.SendMessageInput{
		ConversationID: c.Param("conversation_id"),
		SenderID:       req.SenderID,
		Content:        req.Content,
	}
	if req.Attachment != nil {
		input.Attachment = &chat.AttachmentUpload{
			Name:     req.Attachment.Name,
			Data:     req.Attachment.Data,
			MimeType: req.Attachment.MimeType,
		}
	}

	msg, err := h.service.SendMessage(c.Request.Context(), input)
	h.writeSendResult(c, msg, err)
}

// SendMessageUpload handles POST /v1/conversations/:conversation_id/messages/upload
// @Summary Send a message with a multipart attachment
// @Description Appends a message whose attachment arrives as a multipart file field
// @Tags Messages
// @Accept multipart/form-data
// @Produce json
// @Param conversation_id path string true "Conversation ID"
// @Param sender_id formData string true "Sender user ID"
// @Param content formData string false "Message text"
// @Param file formData file true "Attachment blob"
// @Success 200 {object} responses.SendMessageResponse
// @Success 201 {object} responses.SendMessageResponse
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/conversations/{conversation_id}/messages/upload [post]
func (h *ChatHandler) SendMessageUpload(c *gin.Context) {
	senderID := c.Request.FormValue("sender_id")
	if senderID == "" {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "sender_id is required", "5b4e3f6a-7c8d-4e9f-0a1b-2c3d4e5f6a7b")
		return
	}

	input := chat.SendMessageInput{
		ConversationID: c.Param("conversation_id"),
		SenderID:       senderID,
		Content:        c.Request.FormValue("content"),
	}

	fileHeader, err := c.FormFile("file")
	if err == nil {
		file, openErr := fileHeader.Open()
		if openErr != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "failed to open uploaded file", "6c5f4a7b-8d9e-4f0a-1b2c-3d4e5f6a7b8c")
			return
		}
		defer file.Close()

		data, readErr := io.ReadAll(file)
		if readErr != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "failed to read uploaded file", "7d6a5b8c-9eaf-400b-2c3d-4e5f6a7b8c9d")
			return
		}

		input.Attachment = &chat.AttachmentUpload{
			Name:     fileHeader.Filename,
			Data:     data,
			MimeType: fileHeader.Header.Get("Content-Type"),
		}
	}

	msg, serviceErr := h.service.SendMessage(c.Request.Context(), input)
	h.writeSendResult(c, msg, serviceErr)
}

// ListMessages handles GET /v1/conversations/:conversation_id/messages
// @Summary List a conversation's messages
// @Description Returns messages in chronological order
// @Tags Messages
// @Produce json
// @Param conversation_id path string true "Conversation ID"
// @Param limit query int false "Maximum messages to return"
// @Success 200 {object} responses.MessageListResponse
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/conversations/{conversation_id}/messages [get]
func (h *ChatHandler) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "limit must be an integer", "8e7b6c9d-0bfa-411c-3d4e-5f6a7b8c9d0e")
			return
		}
		limit = parsed
	}

	msgs, err := h.service.ListMessages(c.Request.Context(), c.Param("conversation_id"), limit)
	if err != nil {
		responses.HandleError(c, err, "failed to list messages")
		return
	}

	c.JSON(http.StatusOK, responses.MapMessagesToResponse(msgs))
}

// MarkRead handles POST /v1/conversations/:conversation_id/read
// @Summary Mark a conversation read
// @Description Resets the caller's unread counter to zero and announces the reset
// @Tags Messages
// @Accept json
// @Produce json
// @Param conversation_id path string true "Conversation ID"
// @Param request body requests.MarkReadRequest true "Reader"
// @Success 204
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/conversations/{conversation_id}/read [post]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req requests.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "9f8c7d0e-1cab-422d-4e5f-6a7b8c9d0e1f")
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), c.Param("conversation_id"), req.UserID); err != nil {
		responses.HandleError(c, err, "failed to mark conversation read")
		return
	}

	c.Status(http.StatusNoContent)
}

// writeSendResult maps the send outcome onto the wire. A partial update means
// the message is stored but the conversation summary lagged; the message is
// returned with a warning instead of an error body.
func (h *ChatHandler) writeSendResult(c *gin.Context, msg *chat.Message, err error) {
	if err != nil {
		if msg != nil && platformerrors.IsErrorType(err, platformerrors.ErrorTypePartialUpdate) {
			h.log.Warn().Err(err).Str("message_id", msg.PublicID).Msg("message stored with stale conversation summary")
			resp := responses.MapMessageToResponse(msg)
			c.JSON(http.StatusOK, responses.SendMessageResponse{
				Message: &resp,
				Warning: "message stored but conversation summary update failed",
			})
			return
		}
		responses.HandleError(c, err, "failed to send message")
		return
	}

	resp := responses.MapMessageToResponse(msg)
	c.JSON(http.StatusCreated, responses.SendMessageResponse{Message: &resp})
}
