package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageAttachment struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;index" json:"message_id"`
	Path      string    `gorm:"size:255;not null" json:"path"`
	Mime      string    `gorm:"size:100" json:"mime"`
	Size      int64     `gorm:"not null;default:0" json:"size"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *MessageAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
