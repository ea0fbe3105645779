package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/middleware"
	"github.com/ysuzuki8/market_dm/presenters"
	"github.com/ysuzuki8/market_dm/services"
)

type CreateConversationRequest struct {
	Type           string   `json:"type" validate:"omitempty,oneof=direct group"`
	Title          string   `json:"title" validate:"omitempty,max=255"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,uuid"`
}

// ListConversations returns every conversation the caller participates in,
// newest activity first.
func ListConversations(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return respondError(c, err)
	}

	views, err := conversationService.ListForUser(userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"items": presenters.PresentConversations(views, userID, attachmentStore.URLFor),
	})
}

// CreateConversation creates a direct or group conversation. For a direct
// pair that already has a conversation the canonical row is returned with
// status 200 instead of 201.
func CreateConversation(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, fmt.Errorf("%w: %v", services.ErrValidation, err))
	}

	conversationType := req.Type
	if conversationType == "" {
		conversationType = "direct"
	}

	participantIDs, err := parseParticipantIDs(req.ParticipantIDs, userID)
	if err != nil {
		return respondError(c, err)
	}
	if len(participantIDs) == 0 {
		return respondError(c, fmt.Errorf("%w: select at least one participant", services.ErrValidation))
	}

	if conversationType == "direct" {
		if len(participantIDs) != 1 {
			return respondError(c, fmt.Errorf("%w: a direct conversation takes exactly one other participant", services.ErrValidation))
		}
		// Any supplied title is ignored for direct conversations.
		view, created, err := conversationService.CreateOrGetDirect(userID, participantIDs[0])
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(presenters.PresentConversation(view, userID, attachmentStore.URLFor))
	}

	view, err := conversationService.CreateGroup(userID, req.Title, participantIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(presenters.PresentConversation(view, userID, attachmentStore.URLFor))
}

// UnreadCount returns the caller's total unread messages across all
// conversations.
func UnreadCount(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return respondError(c, err)
	}

	total, err := readStateService.TotalUnread(userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"total": total})
}

func parseParticipantIDs(raw []string, currentUserID uuid.UUID) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{currentUserID: true}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid participant id %q", services.ErrValidation, value)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
