package router

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/adapter/api/handler"
	"tradepost/internal/adapter/api/middleware"
)

// SetupMessagingRouter wires all conversation and message routes.
func SetupMessagingRouter(e *echo.Echo, messagingHandler *handler.MessagingHandler, authMiddleware *middleware.AuthMiddleware) {
	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)

	// Conversation management
	conversations.POST("", messagingHandler.StartConversation)
	conversations.GET("", messagingHandler.ListConversations)
	conversations.GET("/:id", messagingHandler.GetConversation)
	conversations.POST("/:id/activate", messagingHandler.Activate)
	conversations.POST("/:id/deactivate", messagingHandler.Deactivate)
	conversations.PUT("/:id/read", messagingHandler.MarkRead)
	conversations.POST("/:id/archive", messagingHandler.ArchiveConversation)

	// Messages
	conversations.GET("/:id/messages", messagingHandler.GetMessages)
	conversations.POST("/:id/messages", messagingHandler.SendMessage)
	conversations.PUT("/:id/messages/:messageId", messagingHandler.EditMessage)
	conversations.DELETE("/:id/messages/:messageId", messagingHandler.DeleteMessage)

	// Offers
	conversations.POST("/:id/offers", messagingHandler.SendOffer)
	conversations.POST("/:id/offers/accept", messagingHandler.AcceptOffer)
	conversations.POST("/:id/offers/reject", messagingHandler.RejectOffer)

	unread := e.Group("/v1/unread")
	unread.Use(authMiddleware.Authenticate)
	unread.GET("", messagingHandler.UnreadSummary)
}
