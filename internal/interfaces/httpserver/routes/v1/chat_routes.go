package v1

import (
	"github.com/gin-gonic/gin"

	"fitloop-server/services/chat-api/internal/interfaces/httpserver/handlers"
)

func registerChatRoutes(router gin.IRoutes, handler *handlers.ChatHandler) {
	router.POST("/conversations", handler.CreateConversation)
	router.GET("/conversations/:conversation_id/messages", handler.ListMessages)
	router.POST("/conversations/:conversation_id/messages", handler.SendMessage)
	router.POST("/conversations/:conversation_id/messages/upload", handler.SendMessageUpload)
	router.POST("/conversations/:conversation_id/read", handler.MarkRead)

	router.GET("/users/:user_id/conversations", handler.ListConversations)
}
