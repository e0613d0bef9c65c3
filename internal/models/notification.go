package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an in-app message. A nil RecipientID addresses every operator.
type Notification struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	RecipientID *uint             `gorm:"index" json:"recipientId,omitempty"`
	Recipient   *User             `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"-"`
	Type        string            `gorm:"size:50;not null;index" json:"type"`
	Message     string            `gorm:"type:text" json:"message"`
	Payload     datatypes.JSONMap `json:"payload"`
	ReadAt      *time.Time        `json:"readAt,omitempty"`
	CreatedAt   time.Time         `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for Notification model
func (Notification) TableName() string {
	return "notifications"
}
