package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConversationTypeDirect = "direct"
	ConversationTypeGroup  = "group"
)

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Type      string    `gorm:"size:20;not null;default:'direct'" json:"type"`
	Title     *string   `gorm:"size:255" json:"title"`
	CreatedBy uuid.UUID `gorm:"type:uuid;not null" json:"created_by"`

	// DirectKey is "min(uuid):max(uuid)" of the two participants for a
	// direct conversation, null for groups. The unique index is what keeps
	// concurrent first-contact requests from creating two canonical rows.
	DirectKey *string `gorm:"size:80;uniqueIndex" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"-"`
	Messages     []Message                 `gorm:"foreignKey:ConversationID" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
