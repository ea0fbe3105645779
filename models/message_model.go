package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Body           *string   `gorm:"type:text" json:"body"`
	HasAttachments bool      `gorm:"not null;default:false" json:"has_attachments"`

	// Soft delete is modeled with an explicit flag, not gorm.DeletedAt:
	// deleted messages stay visible as tombstones in every listing.
	IsDeleted bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at"`
	EditedAt  *time.Time `json:"edited_at"`

	// Legacy per-message read marker, exposed in the projection but never
	// written by this service; read state lives on the participant row.
	ReadAt *time.Time `json:"read_at"`

	Sender      User                `gorm:"foreignKey:SenderID" json:"sender"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate mints a time-ordered (v7) id so that sorting on id breaks
// created_at ties in insertion order.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	return nil
}
