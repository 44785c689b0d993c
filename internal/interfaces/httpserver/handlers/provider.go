package handlers

import (
	"github.com/rs/zerolog"

	"fitloop-server/services/chat-api/internal/domain/chat"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Chat *ChatHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(chatService chat.Service, log zerolog.Logger) *Provider {
	return &Provider{
		Chat: NewChatHandler(chatService, log),
	}
}
