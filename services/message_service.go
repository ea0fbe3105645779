package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/models"
	"gorm.io/gorm"
)

const (
	MaxBodyLength            = 4000
	MaxAttachmentsPerMessage = 5
	MaxAttachmentSize        = 5 << 20
)

var allowedAttachmentMimes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
}

// MessagePage is one page of a conversation's message history, newest first.
type MessagePage struct {
	Items       []models.Message
	Total       int64
	CurrentPage int
	LastPage    int
	PerPage     int
}

type MessageService struct {
	db       *gorm.DB
	store    AttachmentStore
	registry *ConversationService
}

func NewMessageService(db *gorm.DB, store AttachmentStore) *MessageService {
	return &MessageService{db: db, store: store, registry: NewConversationService(db)}
}

// Send appends a message to the conversation. Attachment blobs are stored
// before any rows are written and rolled back on a mid-batch failure, so a
// message with a partial attachment set is never observable.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID uuid.UUID, body string, files []*multipart.FileHeader) (*models.Message, error) {
	if _, err := s.registry.Get(conversationID); err != nil {
		return nil, err
	}
	if err := s.registry.RequireParticipant(conversationID, senderID); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(body)
	if trimmed == "" && len(files) == 0 {
		return nil, fmt.Errorf("%w: a message needs a body or at least one attachment", ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, fmt.Errorf("%w: body exceeds %d characters", ErrValidation, MaxBodyLength)
	}
	if len(files) > MaxAttachmentsPerMessage {
		return nil, fmt.Errorf("%w: at most %d attachments per message", ErrValidation, MaxAttachmentsPerMessage)
	}
	for _, file := range files {
		if file.Size > MaxAttachmentSize {
			return nil, fmt.Errorf("%w: attachment %q exceeds the size limit", ErrValidation, file.Filename)
		}
		if !allowedAttachmentMimes[file.Header.Get("Content-Type")] {
			return nil, fmt.Errorf("%w: attachment %q has an unsupported type", ErrValidation, file.Filename)
		}
	}

	stored := make([]StoredFile, 0, len(files))
	for _, file := range files {
		sf, err := s.store.Store(ctx, file)
		if err != nil {
			// Best-effort rollback of blobs already stored in this call.
			for _, prev := range stored {
				_ = s.store.Remove(ctx, prev.Path)
			}
			if errors.Is(err, ErrStorage) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		stored = append(stored, sf)
	}

	var bodyPtr *string
	if trimmed != "" {
		bodyPtr = &body
	}

	message := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           bodyPtr,
		HasAttachments: len(stored) > 0,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		for _, sf := range stored {
			attachment := models.MessageAttachment{
				MessageID: message.ID,
				Path:      sf.Path,
				Mime:      sf.Mime,
				Size:      sf.Size,
			}
			if err := tx.Create(&attachment).Error; err != nil {
				return err
			}
		}
		return touchConversation(tx, conversationID)
	})
	if err != nil {
		return nil, err
	}

	return s.load(conversationID, message.ID)
}

// Edit replaces the body of a non-deleted message. Only the sender may
// edit; the update is conditioned on is_deleted so a racing delete wins.
func (s *MessageService) Edit(conversationID, messageID, editorID uuid.UUID, newBody string) (*models.Message, error) {
	message, err := s.authorize(conversationID, messageID, editorID)
	if err != nil {
		return nil, err
	}

	if message.IsDeleted {
		return nil, fmt.Errorf("%w: a deleted message cannot be edited", ErrInvalidState)
	}
	trimmed := strings.TrimSpace(newBody)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: the message body must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(newBody) > MaxBodyLength {
		return nil, fmt.Errorf("%w: body exceeds %d characters", ErrValidation, MaxBodyLength)
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).
			Where("id = ? AND is_deleted = ?", messageID, false).
			Updates(map[string]interface{}{"body": newBody, "edited_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: a deleted message cannot be edited", ErrInvalidState)
		}
		return touchConversation(tx, conversationID)
	})
	if err != nil {
		return nil, err
	}

	return s.load(conversationID, messageID)
}

// SoftDelete tombstones a message. Deleting an already-deleted message is a
// no-op returning the current state.
func (s *MessageService) SoftDelete(conversationID, messageID, editorID uuid.UUID) (*models.Message, error) {
	message, err := s.authorize(conversationID, messageID, editorID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return s.load(conversationID, messageID)
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).
			Where("id = ? AND is_deleted = ?", messageID, false).
			Updates(map[string]interface{}{
				"is_deleted":      true,
				"deleted_at":      now,
				"has_attachments": false,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// A concurrent delete got there first; same terminal state.
			return nil
		}
		return touchConversation(tx, conversationID)
	})
	if err != nil {
		return nil, err
	}

	return s.load(conversationID, messageID)
}

// ListPage returns one page of the conversation's messages, newest first,
// and advances the requester's read marker as a side effect. This
// read-on-fetch mutation is the intended contract inherited from the
// source system.
func (s *MessageService) ListPage(conversationID, requesterID uuid.UUID, page, perPage int) (*MessagePage, error) {
	if _, err := s.registry.Get(conversationID); err != nil {
		return nil, err
	}
	if err := s.registry.RequireParticipant(conversationID, requesterID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 30
	}
	if perPage > 100 {
		perPage = 100
	}

	var total int64
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	err = s.db.
		Preload("Sender").
		Preload("Attachments").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	if err := s.registry.reads.MarkRead(conversationID, requesterID); err != nil {
		return nil, err
	}

	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}

	return &MessagePage{
		Items:       messages,
		Total:       total,
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     perPage,
	}, nil
}

// authorize runs the shared access checks for message mutations:
// conversation exists, editor participates, message belongs to the
// conversation, editor is the sender.
func (s *MessageService) authorize(conversationID, messageID, editorID uuid.UUID) (*models.Message, error) {
	if _, err := s.registry.Get(conversationID); err != nil {
		return nil, err
	}
	if err := s.registry.RequireParticipant(conversationID, editorID); err != nil {
		return nil, err
	}

	var message models.Message
	err := s.db.First(&message, "id = ? AND conversation_id = ?", messageID, conversationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message does not exist", ErrNotFound)
		}
		return nil, err
	}
	if message.SenderID != editorID {
		return nil, fmt.Errorf("%w: only your own messages can be modified", ErrForbidden)
	}
	return &message, nil
}

func (s *MessageService) load(conversationID, messageID uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := s.db.
		Preload("Sender").
		Preload("Attachments").
		First(&message, "id = ? AND conversation_id = ?", messageID, conversationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message does not exist", ErrNotFound)
		}
		return nil, err
	}
	return &message, nil
}

func touchConversation(tx *gorm.DB, conversationID uuid.UUID) error {
	return tx.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", time.Now()).Error
}
