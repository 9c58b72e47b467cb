// db/repo_items_admin.go
package db

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/models"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(it).Error
	if isUniqueViolation(err) {
		return apperr.Invalid("name", "an item with this name already exists")
	}
	return errors.Wrap(err, "create item")
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "item")
	}
	return &it, nil
}

func (r *Repo) ListItems(ctx context.Context, orgID string) ([]models.Item, error) {
	var items []models.Item
	err := r.DB.WithContext(ctx).Where("organization_id = ?", orgID).Order("name").Find(&items).Error
	return items, errors.Wrap(err, "list items")
}

// normalizeIdentifier trims s and maps "" to nil.
func normalizeIdentifier(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CreateAsset adds an available asset to an item. At least one of serial
// number and device id is required; each must be unused.
func (r *Repo) CreateAsset(ctx context.Context, a *models.Asset) error {
	a.SerialNumber = normalizeIdentifier(a.SerialNumber)
	a.DeviceID = normalizeIdentifier(a.DeviceID)
	if a.SerialNumber == nil && a.DeviceID == nil {
		return apperr.Invalid("serialNumber", "a serial number or a device id is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = models.AssetAvailable

	return r.Transaction(ctx, "create asset", func(tx *Repo) error {
		db := tx.DB.WithContext(ctx)
		for field, v := range map[string]*string{"serial_number": a.SerialNumber, "device_id": a.DeviceID} {
			if v == nil {
				continue
			}
			var n int64
			if err := db.Model(&models.Asset{}).Where(field+" = ?", *v).Count(&n).Error; err != nil {
				return errors.Wrap(err, "check identifier")
			}
			if n > 0 {
				return apperr.Invalid(field, "is already registered to another asset")
			}
		}
		if err := db.Omit(clause.Associations).Create(a).Error; err != nil {
			if isUniqueViolation(err) {
				return apperr.Invalid("serialNumber", "is already registered to another asset")
			}
			return errors.Wrap(err, "create asset")
		}
		return tx.RecomputeItemCounts(ctx, a.ItemID)
	})
}

// DeleteAsset removes an asset and its resolved loans. Refused while any
// loan on it is pending, approved or overdue.
func (r *Repo) DeleteAsset(ctx context.Context, id string) error {
	return r.Transaction(ctx, "delete asset", func(tx *Repo) error {
		a, err := tx.LockAsset(ctx, id)
		if err != nil {
			return err
		}
		db := tx.DB.WithContext(ctx)
		var open int64
		if err := db.Model(&models.Loan{}).
			Where("asset_id = ? AND status IN ?", id, models.UnresolvedStatuses).
			Count(&open).Error; err != nil {
			return errors.Wrap(err, "count unresolved loans")
		}
		if open > 0 {
			return apperr.Refused("asset has unresolved loans")
		}
		if err := db.Where("asset_id = ?", id).Delete(&models.Loan{}).Error; err != nil {
			return errors.Wrap(err, "delete loans")
		}
		if err := db.Delete(&models.Asset{}, "id = ?", id).Error; err != nil {
			return errors.Wrap(err, "delete asset")
		}
		return tx.RecomputeItemCounts(ctx, a.ItemID)
	})
}

// SetMaintenanceStatus is the admin maintenance action: it moves an
// asset between available, maintenance and retired. on_loan belongs to
// the loan lifecycle and is neither entered nor left here.
func (r *Repo) SetMaintenanceStatus(ctx context.Context, id string, status models.AssetStatus) (*models.Asset, error) {
	if !status.Valid() || status == models.AssetOnLoan {
		return nil, apperr.Invalid("status", "must be available, maintenance or retired")
	}
	var out *models.Asset
	err := r.Transaction(ctx, "set asset status", func(tx *Repo) error {
		a, err := tx.LockAsset(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == models.AssetOnLoan {
			return apperr.Refused("asset is checked out")
		}
		if err := tx.SetAssetStatus(ctx, id, status); err != nil {
			return err
		}
		if err := tx.RecomputeItemCounts(ctx, a.ItemID); err != nil {
			return err
		}
		a.Status = status
		out = a
		return nil
	})
	return out, err
}

type AdminAssetRow struct {
	// Asset fields
	ID           string    `json:"id"`
	ItemID       string    `json:"itemId"`
	ItemName     string    `json:"itemName"`
	SerialNumber *string   `json:"serialNumber,omitempty"`
	DeviceID     *string   `json:"deviceId,omitempty"`
	Location     string    `json:"location,omitempty"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Current holder (nullable)
	LoanID     *string    `json:"loanId,omitempty"`
	BorrowerID *string    `json:"borrowerId,omitempty"`
	PickupAt   *time.Time `json:"pickupAt,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

type AdminAssetsQuery struct {
	OrganizationID string
	Q              string // 模糊搜索：serial/device/item name
	Status         string // "", "available", "on_loan", "maintenance", "retired"
	Page           int
	Size           int
}

type PagedAdminAssets struct {
	Total  int64           `json:"total"`
	Assets []AdminAssetRow `json:"assets"`
}

// ListAssetsWithCurrentLoan lists an organization's assets with the loan
// currently holding each one, if any.
func (r *Repo) ListAssetsWithCurrentLoan(ctx context.Context, q AdminAssetsQuery) (*PagedAdminAssets, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	db := r.DB.WithContext(ctx)

	filtered := func() *gorm.DB {
		qry := db.Table(models.AssetTable+" a").
			Joins("JOIN "+models.ItemTable+" i ON i.id = a.item_id").
			Where("i.organization_id = ?", q.OrganizationID)
		if s := strings.TrimSpace(q.Q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			qry = qry.Where("(LOWER(COALESCE(a.serial_number, '')) LIKE ? OR LOWER(COALESCE(a.device_id, '')) LIKE ? OR LOWER(i.name) LIKE ?)", pat, pat, pat)
		}
		if q.Status != "" {
			qry = qry.Where("a.status = ?", q.Status)
		}
		return qry
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count assets")
	}

	var rows []AdminAssetRow
	if err := filtered().
		Select(`
			a.id, a.item_id, i.name AS item_name, a.serial_number, a.device_id,
			a.location, a.status, a.updated_at,
			ol.id          AS loan_id,
			ol.borrower_id AS borrower_id,
			ol.pickup_at,
			ol.due_date
		`).
		// 唯一部分索引保证每件资产最多一条“已取走未归还”
		Joins("LEFT JOIN "+models.LoanTable+" ol ON ol.asset_id = a.id AND ol.pickup_at IS NOT NULL AND ol.return_at IS NULL").
		Order("i.name, a.created_at").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list assets")
	}
	return &PagedAdminAssets{Total: total, Assets: rows}, nil
}
