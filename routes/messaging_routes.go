package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ysuzuki8/market_dm/handlers"
	"github.com/ysuzuki8/market_dm/middleware"
)

func MessagingRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	dm := api.Group("/dm", middleware.Protected())
	dm.Get("/conversations", handlers.ListConversations)
	dm.Post("/conversations", handlers.CreateConversation)
	dm.Get("/conversations/:conversationId/messages", handlers.ListMessages)
	dm.Post("/conversations/:conversationId/messages", handlers.SendMessage)
	dm.Put("/conversations/:conversationId/messages/:messageId", handlers.EditMessage)
	dm.Delete("/conversations/:conversationId/messages/:messageId", handlers.DeleteMessage)
	dm.Get("/unread-count", handlers.UnreadCount)
}
