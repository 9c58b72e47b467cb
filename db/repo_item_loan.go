package db

import (
	"asset_lending_tool/models"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

func dateArg(t time.Time) datatypes.Date { return *models.NewDate(t) }

func (r *Repo) FindAssetByID(ctx context.Context, id string) (*models.Asset, error) {
	var a models.Asset
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "asset")
	}
	return &a, nil
}

// LockAsset reads the asset row FOR UPDATE. The asset row is the
// serialization point for every booking decision on it, so it is always
// locked before any of its loans.
func (r *Repo) LockAsset(ctx context.Context, id string) (*models.Asset, error) {
	var a models.Asset
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "asset")
	}
	return &a, nil
}

func (r *Repo) SetAssetStatus(ctx context.Context, id string, status models.AssetStatus) error {
	return errors.Wrap(r.DB.WithContext(ctx).Model(&models.Asset{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error, "set asset status")
}

// RecomputeItemCounts rewrites the item's derived quantities from its
// assets. Idempotent; call it in the transaction that changed an asset.
func (r *Repo) RecomputeItemCounts(ctx context.Context, itemID string) error {
	db := r.DB.WithContext(ctx)
	var total, available int64
	if err := db.Model(&models.Asset{}).Where("item_id = ?", itemID).Count(&total).Error; err != nil {
		return errors.Wrap(err, "count assets")
	}
	if err := db.Model(&models.Asset{}).
		Where("item_id = ? AND status = ?", itemID, models.AssetAvailable).
		Count(&available).Error; err != nil {
		return errors.Wrap(err, "count available assets")
	}
	return errors.Wrap(db.Model(&models.Item{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"total_quantity":     total,
			"available_quantity": available,
		}).Error, "update item counts")
}

// RecomputeAllItemCounts recomputes every item of orgID, or of all
// organizations when orgID is empty, one transaction per item.
func (r *Repo) RecomputeAllItemCounts(ctx context.Context, orgID string) (int, error) {
	q := r.DB.WithContext(ctx).Model(&models.Item{})
	if orgID != "" {
		q = q.Where("organization_id = ?", orgID)
	}
	var ids []string
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, errors.Wrap(err, "list items")
	}
	for i, id := range ids {
		if err := r.Transaction(ctx, "recompute counts", func(tx *Repo) error {
			return tx.RecomputeItemCounts(ctx, id)
		}); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// Loans

func (r *Repo) FindLoanByID(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "loan")
	}
	return &l, nil
}

func (r *Repo) LockLoan(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "loan")
	}
	return &l, nil
}

// OverlappingLoans returns, locked, the loans on assetID whose status is
// in statuses and whose closed range [start_date, due_date] meets
// [start, due]. excludeID, when set, is left out.
func (r *Repo) OverlappingLoans(ctx context.Context, assetID string, start, due time.Time, statuses []models.LoanStatus, excludeID string) ([]models.Loan, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	q := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset_id = ? AND status IN ?", assetID, statuses).
		Where("start_date IS NOT NULL AND due_date IS NOT NULL").
		Where("start_date <= ? AND due_date >= ?", dateArg(due), dateArg(start))
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var ls []models.Loan
	if err := q.Order("start_date").Find(&ls).Error; err != nil {
		return nil, errors.Wrap(err, "overlapping loans")
	}
	return ls, nil
}

func (r *Repo) CreateLoan(ctx context.Context, l *models.Loan) error {
	return errors.Wrap(r.DB.WithContext(ctx).Omit(clause.Associations).Create(l).Error, "create loan")
}

// UpdateLoan writes fields onto the loan row and reloads it.
func (r *Repo) UpdateLoan(ctx context.Context, l *models.Loan, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	db := r.DB.WithContext(ctx)
	if err := db.Model(&models.Loan{}).Where("id = ?", l.ID).Updates(fields).Error; err != nil {
		return errors.Wrap(err, "update loan")
	}
	return errors.Wrap(db.First(l, "id = ?", l.ID).Error, "reload loan")
}

// OverdueCandidates lists approved loans whose due date is before asOf.
func (r *Repo) OverdueCandidates(ctx context.Context, asOf time.Time) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.DB.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.LoanApproved, dateArg(asOf)).
		Order("due_date").
		Find(&ls).Error
	return ls, errors.Wrap(err, "overdue candidates")
}

type LoanFilter struct {
	OrganizationID string
	Status         models.LoanStatus
	AssetID        string
	BorrowerID     string
}

// ListLoans lists the organization's loans, newest request first.
func (r *Repo) ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error) {
	q := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Joins("JOIN "+models.AssetTable+" a ON a.id = "+models.LoanTable+".asset_id").
		Joins("JOIN "+models.ItemTable+" i ON i.id = a.item_id").
		Where("i.organization_id = ?", f.OrganizationID).
		Order(models.LoanTable + ".requested_at DESC")
	if f.Status != "" {
		q = q.Where(models.LoanTable+".status = ?", f.Status)
	}
	if f.AssetID != "" {
		q = q.Where(models.LoanTable+".asset_id = ?", f.AssetID)
	}
	if f.BorrowerID != "" {
		q = q.Where(models.LoanTable+".borrower_id = ?", f.BorrowerID)
	}
	var ls []models.Loan
	if err := q.Find(&ls).Error; err != nil {
		return nil, errors.Wrap(err, "list loans")
	}
	return ls, nil
}
