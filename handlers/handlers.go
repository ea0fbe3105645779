package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/ysuzuki8/market_dm/services"
	"gorm.io/gorm"
)

var validate = validator.New()

var (
	conversationService *services.ConversationService
	messageService      *services.MessageService
	readStateService    *services.ReadStateService
	attachmentStore     services.AttachmentStore
)

// Init wires the handler package to the database and the attachment
// backend. Call once at startup, before mounting routes.
func Init(db *gorm.DB, store services.AttachmentStore) {
	conversationService = services.NewConversationService(db)
	messageService = services.NewMessageService(db, store)
	readStateService = services.NewReadStateService(db)
	attachmentStore = store
}

func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	kind := "internal_error"
	switch {
	case errors.Is(err, services.ErrValidation):
		status, kind = fiber.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, services.ErrForbidden):
		status, kind = fiber.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrNotFound):
		status, kind = fiber.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrInvalidState):
		status, kind = fiber.StatusBadRequest, "invalid_state"
	case errors.Is(err, services.ErrStorage):
		status, kind = fiber.StatusInternalServerError, "storage_error"
	case errors.Is(err, services.ErrUnauthenticated):
		status, kind = fiber.StatusUnauthorized, "unauthenticated"
	}

	if status == fiber.StatusInternalServerError {
		log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
	}
	return c.Status(status).JSON(fiber.Map{"error": kind, "message": err.Error()})
}
