// models/item_loan.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ItemTable  = "lend_items"
	AssetTable = "lend_assets"
	LoanTable  = "lend_loans"
)

type AssetStatus string

const (
	AssetAvailable   AssetStatus = "available"
	AssetOnLoan      AssetStatus = "on_loan"
	AssetMaintenance AssetStatus = "maintenance"
	AssetRetired     AssetStatus = "retired"
)

func (s AssetStatus) Valid() bool {
	switch s {
	case AssetAvailable, AssetOnLoan, AssetMaintenance, AssetRetired:
		return true
	}
	return false
}

type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanReturned LoanStatus = "returned"
	LoanRejected LoanStatus = "rejected"
	LoanOverdue  LoanStatus = "overdue"
)

// Terminal statuses never change again.
func (s LoanStatus) Terminal() bool { return s == LoanReturned || s == LoanRejected }

var (
	// LiveStatuses occupy a slot on the booking calendar.
	LiveStatuses = []LoanStatus{LoanPending, LoanApproved}
	// UnresolvedStatuses block deleting the asset.
	UnresolvedStatuses = []LoanStatus{LoanPending, LoanApproved, LoanOverdue}
)

// Item is a named type of asset, e.g. "Projector Model Z". The two
// quantities are derived from its assets by RecomputeItemCounts.
type Item struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_item_org_name" json:"organizationId"`
	Name              string    `gorm:"size:255;not null;uniqueIndex:idx_item_org_name" json:"name"`
	Description       string    `gorm:"type:text" json:"description,omitempty"`
	TotalQuantity     int       `gorm:"not null;default:0" json:"totalQuantity"`
	AvailableQuantity int       `gorm:"not null;default:0" json:"availableQuantity"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	Assets []Asset `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Asset is one physical unit. Empty identifiers are stored as NULL so
// they never collide on the unique indexes.
type Asset struct {
	ID           string      `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID       string      `gorm:"type:uuid;index;not null" json:"itemId"`
	SerialNumber *string     `gorm:"size:255;uniqueIndex;check:chk_asset_identifier,serial_number IS NOT NULL OR device_id IS NOT NULL" json:"serialNumber,omitempty"`
	DeviceID     *string     `gorm:"size:255;uniqueIndex" json:"deviceId,omitempty"`
	Location     string      `gorm:"size:255" json:"location,omitempty"`
	Status       AssetStatus `gorm:"size:20;not null;default:'available';index" json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`

	Item  Item   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Loans []Loan `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Loan is one borrowing of one asset by one borrower. Start and due are
// calendar dates; the *At fields are instants.
type Loan struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID     string          `gorm:"type:uuid;not null;index:idx_loan_asset_status;index:idx_loan_asset_range" json:"assetId"`
	BorrowerID  string          `gorm:"type:uuid;index;not null" json:"borrowerId"`
	RequestedAt time.Time       `gorm:"not null;index" json:"requestedAt"`
	StartDate   *datatypes.Date `gorm:"index:idx_loan_asset_range" json:"startDate,omitempty"`
	DueDate     *datatypes.Date `gorm:"index:idx_loan_asset_range" json:"dueDate,omitempty"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty"`
	PickupAt    *time.Time      `json:"pickupAt,omitempty"`
	ReturnAt    *time.Time      `gorm:"index" json:"returnAt,omitempty"`
	Status      LoanStatus      `gorm:"size:20;not null;default:'pending';index:idx_loan_asset_status" json:"status"`
	Reason      string          `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (Item) TableName() string  { return ItemTable }
func (Asset) TableName() string { return AssetTable }
func (Loan) TableName() string  { return LoanTable }

// Range returns the loan's dates as UTC midnights; ok is false unless
// both are set.
func (l *Loan) Range() (start, due time.Time, ok bool) {
	if l.StartDate == nil || l.DueDate == nil {
		return time.Time{}, time.Time{}, false
	}
	return dateOnly(time.Time(*l.StartDate)), dateOnly(time.Time(*l.DueDate)), true
}

// Identifier is the serial number, else the device id.
func (a *Asset) Identifier() string {
	if a.SerialNumber != nil {
		return *a.SerialNumber
	}
	if a.DeviceID != nil {
		return *a.DeviceID
	}
	return a.ID
}

// NewDate stores t's calendar date.
func NewDate(t time.Time) *datatypes.Date {
	d := datatypes.Date(dateOnly(t))
	return &d
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
