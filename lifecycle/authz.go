package lifecycle

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/db"
	"asset_lending_tool/models"
	"context"
	"errors"
	"fmt"
)

// AuthorizeOrgAdmin checks that adminID administers orgID.
func (e *Engine) AuthorizeOrgAdmin(ctx context.Context, adminID, orgID string) (*models.User, error) {
	u, err := e.repo.FindUserByID(ctx, adminID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("unknown user %s: %w", adminID, apperr.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if !u.AdminOf(orgID) {
		return nil, fmt.Errorf("user %s is not an admin of %s: %w", adminID, orgID, apperr.ErrForbidden)
	}
	return u, nil
}

// Authorize is the capability check for admin transitions: adminID must
// administer orgID and asset must belong to one of orgID's items.
func (e *Engine) Authorize(ctx context.Context, adminID, orgID string, asset *models.Asset) error {
	if _, err := e.AuthorizeOrgAdmin(ctx, adminID, orgID); err != nil {
		return err
	}
	err := assetInOrg(ctx, e.repo, asset, orgID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("asset %s is outside %s: %w", asset.ID, orgID, apperr.ErrForbidden)
	}
	return err
}

// authorizeLoan loads the loan and its asset and authorizes adminID for
// them. The rows are re-read under lock by the transition itself.
func (e *Engine) authorizeLoan(ctx context.Context, orgID, loanID, adminID string) (*models.Loan, error) {
	loan, err := e.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	asset, err := e.repo.FindAssetByID(ctx, loan.AssetID)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(ctx, adminID, orgID, asset); err != nil {
		return nil, err
	}
	return loan, nil
}

// assetInOrg reports ErrNotFound for an asset outside orgID.
func assetInOrg(ctx context.Context, r *db.Repo, asset *models.Asset, orgID string) error {
	it, err := r.FindItemByID(ctx, asset.ItemID)
	if err != nil {
		return err
	}
	if it.OrganizationID != orgID {
		return fmt.Errorf("asset %s: %w", asset.ID, apperr.ErrNotFound)
	}
	return nil
}

// ListLoans lists the organization's loans for actorID. Admins see all
// of them; other members only their own.
func (e *Engine) ListLoans(ctx context.Context, actorID string, f db.LoanFilter) ([]models.Loan, error) {
	u, err := e.repo.FindUserByID(ctx, actorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("unknown user %s: %w", actorID, apperr.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if !u.AdminOf(f.OrganizationID) {
		f.BorrowerID = u.ID
	}
	return e.repo.ListLoans(ctx, f)
}
