package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/models"
	"gorm.io/gorm"
)

// ConversationView bundles a conversation with the relations every API
// response needs, fetched in planned queries instead of lazy traversal.
type ConversationView struct {
	Conversation models.Conversation
	Participants []models.ConversationParticipant
	LastMessage  *models.Message
	UnreadCount  int64
}

type ConversationService struct {
	db    *gorm.DB
	reads *ReadStateService
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db, reads: NewReadStateService(db)}
}

func directKeyFor(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// CreateOrGetDirect returns the canonical direct conversation between the
// two users, creating it when none exists. The second return value reports
// whether a new conversation was created. Losing a concurrent creation race
// falls back to the winner's row via the direct_key unique index.
func (s *ConversationService) CreateOrGetDirect(creatorID, otherID uuid.UUID) (*ConversationView, bool, error) {
	if creatorID == otherID {
		return nil, false, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}

	var other models.User
	if err := s.db.First(&other, "id = ?", otherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("%w: recipient does not exist", ErrValidation)
		}
		return nil, false, err
	}

	existing, err := s.findDirect(creatorID, otherID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		view, err := s.viewFor(existing.ID, creatorID)
		return view, false, err
	}

	key := directKeyFor(creatorID, otherID)
	now := time.Now()
	conversation := models.Conversation{
		Type:      models.ConversationTypeDirect,
		CreatedBy: creatorID,
		DirectKey: &key,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		participants := []models.ConversationParticipant{
			{ConversationID: conversation.ID, UserID: creatorID, Role: models.ParticipantRoleOwner, JoinedAt: now},
			{ConversationID: conversation.ID, UserID: otherID, Role: models.ParticipantRoleMember, JoinedAt: now},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race: another request created the pair first.
			winner, ferr := s.findDirect(creatorID, otherID)
			if ferr != nil {
				return nil, false, ferr
			}
			if winner != nil {
				view, verr := s.viewFor(winner.ID, creatorID)
				return view, false, verr
			}
		}
		return nil, false, err
	}

	view, err := s.viewFor(conversation.ID, creatorID)
	return view, true, err
}

// findDirect matches only direct conversations whose participant set is
// exactly the pair, so a group that happens to contain both users never
// shadows the canonical direct conversation.
func (s *ConversationService) findDirect(userID1, userID2 uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.
		Joins("JOIN conversation_participants cp1 ON cp1.conversation_id = conversations.id AND cp1.user_id = ?", userID1).
		Joins("JOIN conversation_participants cp2 ON cp2.conversation_id = conversations.id AND cp2.user_id = ?", userID2).
		Where("conversations.type = ?", models.ConversationTypeDirect).
		Where("(SELECT COUNT(*) FROM conversation_participants cp WHERE cp.conversation_id = conversations.id) = 2").
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// CreateGroup creates a group conversation. The creator becomes owner and
// is dropped from the invitee list if supplied there.
func (s *ConversationService) CreateGroup(creatorID uuid.UUID, title string, memberIDs []uuid.UUID) (*ConversationView, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: a group conversation requires a title", ErrValidation)
	}

	seen := map[uuid.UUID]bool{creatorID: true}
	members := make([]uuid.UUID, 0, len(memberIDs))
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: select at least one participant", ErrValidation)
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("id IN ?", members).Count(&count).Error; err != nil {
		return nil, err
	}
	if count != int64(len(members)) {
		return nil, fmt.Errorf("%w: one or more participants do not exist", ErrValidation)
	}

	now := time.Now()
	conversation := models.Conversation{
		Type:      models.ConversationTypeGroup,
		Title:     &title,
		CreatedBy: creatorID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		participants := []models.ConversationParticipant{
			{ConversationID: conversation.ID, UserID: creatorID, Role: models.ParticipantRoleOwner, JoinedAt: now},
		}
		for _, id := range members {
			participants = append(participants, models.ConversationParticipant{
				ConversationID: conversation.ID,
				UserID:         id,
				Role:           models.ParticipantRoleMember,
				JoinedAt:       now,
			})
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		return nil, err
	}

	return s.viewFor(conversation.ID, creatorID)
}

// ListForUser returns every conversation the user participates in, newest
// activity first, enriched with participants, the latest message (deleted
// ones included, they render as tombstones) and the viewer's unread count.
func (s *ConversationService) ListForUser(userID uuid.UUID) ([]ConversationView, error) {
	var conversations []models.Conversation
	err := s.db.
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Preload("Participants.User").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return []ConversationView{}, nil
	}

	ids := make([]uuid.UUID, len(conversations))
	for i, c := range conversations {
		ids[i] = c.ID
	}

	latest, err := s.latestMessages(ids)
	if err != nil {
		return nil, err
	}
	unread, err := s.reads.UnreadCounts(userID, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, len(conversations))
	for i, c := range conversations {
		views[i] = ConversationView{
			Conversation: c,
			Participants: c.Participants,
			LastMessage:  latest[c.ID],
			UnreadCount:  unread[c.ID],
		}
	}
	return views, nil
}

func (s *ConversationService) latestMessages(conversationIDs []uuid.UUID) (map[uuid.UUID]*models.Message, error) {
	var messages []models.Message
	err := s.db.
		Preload("Sender").
		Preload("Attachments").
		Where("messages.conversation_id IN ?", conversationIDs).
		Where("messages.created_at = (SELECT MAX(m2.created_at) FROM messages m2 WHERE m2.conversation_id = messages.conversation_id)").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[uuid.UUID]*models.Message, len(messages))
	for i := range messages {
		m := &messages[i]
		latest[m.ConversationID] = m
	}
	return latest, nil
}

// Get resolves a conversation id or reports ErrNotFound.
func (s *ConversationService) Get(conversationID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := s.db.First(&conversation, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation does not exist", ErrNotFound)
		}
		return nil, err
	}
	return &conversation, nil
}

// RequireParticipant reports ErrForbidden when the user has no membership
// row in the conversation.
func (s *ConversationService) RequireParticipant(conversationID, userID uuid.UUID) error {
	var count int64
	err := s.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: you are not a participant of this conversation", ErrForbidden)
	}
	return nil
}

func (s *ConversationService) viewFor(conversationID, viewerID uuid.UUID) (*ConversationView, error) {
	var conversation models.Conversation
	err := s.db.Preload("Participants.User").First(&conversation, "id = ?", conversationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation does not exist", ErrNotFound)
		}
		return nil, err
	}

	latest, err := s.latestMessages([]uuid.UUID{conversationID})
	if err != nil {
		return nil, err
	}
	unread, err := s.reads.UnreadCounts(viewerID, []uuid.UUID{conversationID})
	if err != nil {
		return nil, err
	}

	return &ConversationView{
		Conversation: conversation,
		Participants: conversation.Participants,
		LastMessage:  latest[conversationID],
		UnreadCount:  unread[conversationID],
	}, nil
}
