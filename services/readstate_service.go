package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/models"
	"gorm.io/gorm"
)

// ReadStateService derives unread counts from the participant read markers.
type ReadStateService struct {
	db *gorm.DB
}

func NewReadStateService(db *gorm.DB) *ReadStateService {
	return &ReadStateService{db: db}
}

// UnreadCounts returns, per conversation, the number of messages from other
// senders created after the user's read marker (all of them when the marker
// is null). A nil conversationIDs slice means no restriction; an empty
// non-nil slice short-circuits to an empty map without querying.
func (s *ReadStateService) UnreadCounts(userID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64)
	if conversationIDs != nil && len(conversationIDs) == 0 {
		return counts, nil
	}

	type unreadRow struct {
		ConversationID uuid.UUID
		UnreadCount    int64
	}

	query := s.db.Model(&models.Message{}).
		Select("messages.conversation_id AS conversation_id, COUNT(*) AS unread_count").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = messages.conversation_id AND cp.user_id = ?", userID).
		Where("messages.sender_id <> ?", userID).
		Where("cp.last_read_at IS NULL OR messages.created_at > cp.last_read_at").
		Group("messages.conversation_id")

	if conversationIDs != nil {
		query = query.Where("messages.conversation_id IN ?", conversationIDs)
	}

	var rows []unreadRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.UnreadCount
	}
	return counts, nil
}

// MarkRead advances the user's read marker to now. This is the sole
// read-marking mechanism; listing messages calls it implicitly.
func (s *ReadStateService) MarkRead(conversationID, userID uuid.UUID) error {
	result := s.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: you are not a participant of this conversation", ErrForbidden)
	}
	return nil
}

// TotalUnread sums the per-conversation unread counts for the user.
func (s *ReadStateService) TotalUnread(userID uuid.UUID) (int64, error) {
	counts, err := s.UnreadCounts(userID, nil)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}
