package models

import (
	"time"
)

const (
	OrganizationTable = "lend_organizations"
	UserTable         = "lend_users"
)

type Organization struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User is a borrower or an organization admin. Identity and login live
// upstream; only what the ownership check needs is kept here.
type User struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username       string  `gorm:"uniqueIndex;size:255;not null" json:"username"`
	DisplayName    string  `gorm:"size:255;not null" json:"displayName"`
	OrganizationID *string `gorm:"type:uuid;index" json:"organizationId,omitempty"`
	IsOrgAdmin     bool    `gorm:"not null;default:false" json:"isOrgAdmin"`

	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Organization) TableName() string { return OrganizationTable }
func (User) TableName() string         { return UserTable }

// AdminOf reports whether u administers orgID.
func (u *User) AdminOf(orgID string) bool {
	return u.IsOrgAdmin && u.OrganizationID != nil && *u.OrganizationID == orgID
}
