package handlers

import (
	"fmt"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/middleware"
	"github.com/ysuzuki8/market_dm/presenters"
	"github.com/ysuzuki8/market_dm/services"
)

type EditMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// ListMessages returns one page of the conversation's history, newest
// first. Fetching a page advances the caller's read marker — listing IS the
// read-marking mechanism, there is no separate endpoint for it.
func ListMessages(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	conversationID, err := parseIDParam(c, "conversationId")
	if err != nil {
		return respondError(c, err)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	perPage, _ := strconv.Atoi(c.Query("perPage", "30"))

	result, err := messageService.ListPage(conversationID, userID, page, perPage)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(presenters.PresentMessagePage(result, c.Path(), attachmentStore.URLFor))
}

// SendMessage appends a message. Accepts multipart form data (field "body"
// plus repeated "attachments" files) or a plain JSON body.
func SendMessage(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	conversationID, err := parseIDParam(c, "conversationId")
	if err != nil {
		return respondError(c, err)
	}

	var body string
	var files []*multipart.FileHeader
	if form, ferr := c.MultipartForm(); ferr == nil && form != nil {
		if values := form.Value["body"]; len(values) > 0 {
			body = values[0]
		}
		files = form.File["attachments"]
	} else {
		var req struct {
			Body string `json:"body"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Cannot parse JSON"})
		}
		body = req.Body
	}

	message, err := messageService.Send(c.Context(), conversationID, userID, body, files)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(presenters.PresentMessage(message, attachmentStore.URLFor))
}

// EditMessage replaces the body of the caller's own message.
func EditMessage(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	conversationID, err := parseIDParam(c, "conversationId")
	if err != nil {
		return respondError(c, err)
	}
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return respondError(c, err)
	}

	var req EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, fmt.Errorf("%w: %v", services.ErrValidation, err))
	}

	message, err := messageService.Edit(conversationID, messageID, userID, req.Body)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(presenters.PresentMessage(message, attachmentStore.URLFor))
}

// DeleteMessage tombstones the caller's own message. Repeating the call is
// a no-op returning the same terminal state.
func DeleteMessage(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	conversationID, err := parseIDParam(c, "conversationId")
	if err != nil {
		return respondError(c, err)
	}
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return respondError(c, err)
	}

	message, err := messageService.SoftDelete(conversationID, messageID, userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(presenters.PresentMessage(message, attachmentStore.URLFor))
}

func parseIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", services.ErrNotFound, name)
	}
	return id, nil
}
