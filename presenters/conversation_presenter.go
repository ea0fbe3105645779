package presenters

import (
	"time"

	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/models"
	"github.com/ysuzuki8/market_dm/services"
)

// fallbackGroupName is defensive only; creation rejects untitled groups.
const fallbackGroupName = "Group chat"

type ConversationListView struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Title        *string      `json:"title"`
	DisplayName  string       `json:"displayName"`
	Participants []UserRef    `json:"participants"`
	LastMessage  *MessageView `json:"lastMessage"`
	UpdatedAt    string       `json:"updatedAt"`
	CreatedAt    string       `json:"createdAt"`
	UnreadCount  int64        `json:"unreadCount"`
}

func PresentConversation(view *services.ConversationView, viewerID uuid.UUID, urlFor URLResolver) ConversationListView {
	conversation := view.Conversation

	participants := make([]UserRef, 0, len(view.Participants))
	for i := range view.Participants {
		if ref := presentUser(&view.Participants[i].User); ref != nil {
			participants = append(participants, *ref)
		}
	}

	var lastMessage *MessageView
	if view.LastMessage != nil {
		mv := PresentMessage(view.LastMessage, urlFor)
		lastMessage = &mv
	}

	return ConversationListView{
		ID:           conversation.ID.String(),
		Type:         conversation.Type,
		Title:        conversation.Title,
		DisplayName:  displayName(&conversation, view.Participants, viewerID),
		Participants: participants,
		LastMessage:  lastMessage,
		UpdatedAt:    conversation.UpdatedAt.Format(time.RFC3339),
		CreatedAt:    conversation.CreatedAt.Format(time.RFC3339),
		UnreadCount:  view.UnreadCount,
	}
}

func PresentConversations(views []services.ConversationView, viewerID uuid.UUID, urlFor URLResolver) []ConversationListView {
	items := make([]ConversationListView, 0, len(views))
	for i := range views {
		items = append(items, PresentConversation(&views[i], viewerID, urlFor))
	}
	return items
}

// displayName is the group title for groups and the other participant's
// display name (falling back to their handle) for direct conversations.
func displayName(conversation *models.Conversation, participants []models.ConversationParticipant, viewerID uuid.UUID) string {
	if conversation.Type == models.ConversationTypeGroup {
		if conversation.Title != nil && *conversation.Title != "" {
			return *conversation.Title
		}
		return fallbackGroupName
	}

	for i := range participants {
		if participants[i].UserID == viewerID {
			continue
		}
		other := participants[i].User
		if other.DisplayName != nil && *other.DisplayName != "" {
			return *other.DisplayName
		}
		return other.Name
	}

	if conversation.Title != nil {
		return *conversation.Title
	}
	return ""
}
