package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is one entry in a user's in-app inbox.
type Notification struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID string         `gorm:"type:uuid;index;not null" json:"recipientId"`
	Kind        string         `gorm:"size:40;not null" json:"kind"`
	LoanID      string         `gorm:"type:uuid;index" json:"loanId"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"createdAt"`
}

func (Notification) TableName() string { return "lend_notifications" }
