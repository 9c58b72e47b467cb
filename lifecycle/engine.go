// Package lifecycle is the loan state machine. Every transition runs in
// one store transaction that locks the asset row first and the loan rows
// second, checks its guards against the locked rows, writes loan, asset
// and item counts together, and notifies the borrower after commit.
//
//	(new) --Request--> pending --Approve--> approved --MarkOverdue--> overdue
//	pending|approved --Reject--> rejected
//	approved|overdue --Return--> returned   (after StartPickup)
//
// StartPickup keeps the loan approved and moves the asset to on_loan.
package lifecycle

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/booking"
	"asset_lending_tool/clock"
	"asset_lending_tool/db"
	"asset_lending_tool/models"
	"asset_lending_tool/notify"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Clock    clock.Clock
	Policy   booking.Policy
	Notifier notify.Notifier
	Logger   *slog.Logger
}

type Engine struct {
	repo     *db.Repo
	clock    clock.Clock
	policy   booking.Policy
	notifier notify.Notifier
	logger   *slog.Logger
}

func New(repo *db.Repo, cfg Config) *Engine {
	e := &Engine{
		repo:     repo,
		clock:    cfg.Clock,
		policy:   cfg.Policy,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.notifier == nil {
		e.notifier = notify.Log{Logger: e.logger}
	}
	return e
}

func (e *Engine) Policy() booking.Policy { return e.policy }

// Today is the current calendar date under the engine's policy.
func (e *Engine) Today() time.Time { return e.policy.Today(e.clock) }

type RequestInput struct {
	OrganizationID string
	AssetID        string
	BorrowerID     string
	StartDate      time.Time
	DueDate        time.Time
	Reason         string
}

// Request books [StartDate, DueDate] on the asset as a pending loan.
func (e *Engine) Request(ctx context.Context, in RequestInput) (*models.Loan, error) {
	r, err := e.policy.ValidateRange(in.StartDate, in.DueDate, e.Today(), true)
	if err != nil {
		return nil, err
	}
	borrower, err := e.repo.FindUserByID(ctx, in.BorrowerID)
	if err != nil {
		return nil, err
	}
	if borrower.OrganizationID == nil || *borrower.OrganizationID != in.OrganizationID {
		return nil, fmt.Errorf("user %s is not a member of %s: %w", borrower.ID, in.OrganizationID, apperr.ErrForbidden)
	}

	var loan *models.Loan
	err = e.repo.Transaction(ctx, "request loan", func(tx *db.Repo) error {
		asset, err := tx.LockAsset(ctx, in.AssetID)
		if err != nil {
			return err
		}
		if err := assetInOrg(ctx, tx, asset, in.OrganizationID); err != nil {
			return err
		}
		if asset.Status == models.AssetRetired {
			return apperr.Refused("asset retired")
		}
		blocker, err := booking.FindConflict(ctx, tx, asset.ID, r, models.LiveStatuses, "")
		if err != nil {
			return err
		}
		if blocker != nil {
			return booking.ConflictWith(blocker)
		}
		loan = &models.Loan{
			ID:          uuid.NewString(),
			AssetID:     asset.ID,
			BorrowerID:  in.BorrowerID,
			RequestedAt: e.clock.Now(),
			StartDate:   models.NewDate(r.Start),
			DueDate:     models.NewDate(r.Due),
			Status:      models.LoanPending,
			Reason:      in.Reason,
		}
		return tx.CreateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "loan requested", "loan_id", loan.ID, "asset_id", loan.AssetID, "range", r.String())
	e.notify(ctx, notify.LoanRequested, loan, in.BorrowerID)
	return loan, nil
}

// Approve accepts a pending loan. The asset stays where it is until
// StartPickup.
func (e *Engine) Approve(ctx context.Context, orgID, loanID, adminID string) (*models.Loan, error) {
	target, err := e.authorizeLoan(ctx, orgID, loanID, adminID)
	if err != nil {
		return nil, err
	}
	loan, err := e.transition(ctx, "approve loan", target, func(tx *db.Repo, loan *models.Loan, asset *models.Asset) error {
		if loan.Status != models.LoanPending {
			return apperr.Refused("not pending")
		}
		start, due, ok := loan.Range()
		if !ok {
			return apperr.Refused("date range missing")
		}
		blocker, err := booking.FindConflict(ctx, tx, asset.ID, booking.Range{Start: start, Due: due},
			[]models.LoanStatus{models.LoanApproved}, loan.ID)
		if err != nil {
			return err
		}
		if blocker != nil {
			return booking.ConflictWith(blocker)
		}
		return tx.UpdateLoan(ctx, loan, map[string]any{
			"status":      models.LoanApproved,
			"approved_at": e.clock.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, notify.LoanApproved, loan, adminID)
	return loan, nil
}

// StartPickup records the physical handover of an approved loan and
// checks the asset out.
func (e *Engine) StartPickup(ctx context.Context, orgID, loanID, adminID string) (*models.Loan, error) {
	target, err := e.authorizeLoan(ctx, orgID, loanID, adminID)
	if err != nil {
		return nil, err
	}
	loan, err := e.transition(ctx, "start pickup", target, func(tx *db.Repo, loan *models.Loan, asset *models.Asset) error {
		if loan.Status != models.LoanApproved {
			return apperr.Refused("not approved")
		}
		if loan.PickupAt != nil {
			return apperr.Refused("already picked up")
		}
		start, _, ok := loan.Range()
		if !ok {
			return apperr.Refused("date range missing")
		}
		if !e.policy.PickupOpen(start, e.Today()) {
			return apperr.Refused("pickup not open before " + start.Format(time.DateOnly))
		}
		if asset.Status != models.AssetAvailable {
			return apperr.Refused("asset not available")
		}
		if err := tx.SetAssetStatus(ctx, asset.ID, models.AssetOnLoan); err != nil {
			return err
		}
		if err := tx.UpdateLoan(ctx, loan, map[string]any{"pickup_at": e.clock.Now()}); err != nil {
			return err
		}
		return tx.RecomputeItemCounts(ctx, asset.ItemID)
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, notify.LoanPickedUp, loan, adminID)
	return loan, nil
}

// Reject closes a pending or approved loan while the asset is not
// checked out, and puts the asset back into circulation.
func (e *Engine) Reject(ctx context.Context, orgID, loanID, adminID string) (*models.Loan, error) {
	target, err := e.authorizeLoan(ctx, orgID, loanID, adminID)
	if err != nil {
		return nil, err
	}
	loan, err := e.transition(ctx, "reject loan", target, func(tx *db.Repo, loan *models.Loan, asset *models.Asset) error {
		switch loan.Status {
		case models.LoanPending, models.LoanApproved:
		default:
			return apperr.Refused("not pending or approved")
		}
		if asset.Status == models.AssetOnLoan {
			return apperr.Refused("asset already checked out; use return instead")
		}
		if err := tx.UpdateLoan(ctx, loan, map[string]any{"status": models.LoanRejected}); err != nil {
			return err
		}
		if asset.Status == models.AssetAvailable {
			return nil
		}
		if err := tx.SetAssetStatus(ctx, asset.ID, models.AssetAvailable); err != nil {
			return err
		}
		return tx.RecomputeItemCounts(ctx, asset.ItemID)
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, notify.LoanRejected, loan, adminID)
	return loan, nil
}

// Return checks the asset back in. The borrower may return their own
// loan; anyone else must be an admin of the organization.
func (e *Engine) Return(ctx context.Context, orgID, loanID, actorID string) (*models.Loan, error) {
	target, err := e.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if target.BorrowerID == actorID {
		asset, err := e.repo.FindAssetByID(ctx, target.AssetID)
		if err != nil {
			return nil, err
		}
		if err := assetInOrg(ctx, e.repo, asset, orgID); err != nil {
			return nil, err
		}
	} else if target, err = e.authorizeLoan(ctx, orgID, loanID, actorID); err != nil {
		return nil, err
	}

	loan, err := e.transition(ctx, "return loan", target, func(tx *db.Repo, loan *models.Loan, asset *models.Asset) error {
		if loan.Status != models.LoanApproved && loan.Status != models.LoanOverdue {
			return apperr.Refused("not approved or overdue")
		}
		if loan.PickupAt == nil || asset.Status != models.AssetOnLoan {
			return apperr.Refused("asset not checked out")
		}
		if err := tx.UpdateLoan(ctx, loan, map[string]any{
			"status":    models.LoanReturned,
			"return_at": e.clock.Now(),
		}); err != nil {
			return err
		}
		if err := tx.SetAssetStatus(ctx, asset.ID, models.AssetAvailable); err != nil {
			return err
		}
		return tx.RecomputeItemCounts(ctx, asset.ItemID)
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, notify.LoanReturned, loan, actorID)
	return loan, nil
}

// MarkOverdue moves an approved loan whose due date is before asOf to
// overdue.
func (e *Engine) MarkOverdue(ctx context.Context, loanID string, asOf time.Time) (*models.Loan, error) {
	target, err := e.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	asOf = booking.DateOf(asOf, time.UTC)
	loan, err := e.transition(ctx, "mark overdue", target, func(tx *db.Repo, loan *models.Loan, _ *models.Asset) error {
		if loan.Status != models.LoanApproved {
			return apperr.Refused("not approved")
		}
		_, due, ok := loan.Range()
		if !ok {
			return apperr.Refused("date range missing")
		}
		if !due.Before(asOf) {
			return apperr.Refused("not yet due")
		}
		return tx.UpdateLoan(ctx, loan, map[string]any{"status": models.LoanOverdue})
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, notify.LoanOverdue, loan, "")
	return loan, nil
}

// SweepOverdue applies MarkOverdue to every approved loan due before
// asOf, one transaction per loan. Running it again for the same date
// changes nothing and returns 0. Loans that moved on in between are
// skipped; other failures are collected and the sweep carries on.
func (e *Engine) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	asOf = booking.DateOf(asOf, time.UTC)
	candidates, err := e.repo.OverdueCandidates(ctx, asOf)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := e.MarkOverdue(ctx, c.ID, asOf)
		var se *apperr.StateTransitionError
		switch {
		case err == nil:
			n++
		case errors.As(err, &se):
			e.logger.DebugContext(ctx, "sweep skipped loan", "loan_id", c.ID, "guard", se.Guard)
		default:
			e.logger.ErrorContext(ctx, "sweep failed on loan", "loan_id", c.ID, "err", err)
			errs = append(errs, err)
		}
	}
	e.logger.InfoContext(ctx, "overdue sweep", "as_of", asOf.Format(time.DateOnly), "candidates", len(candidates), "updated", n)
	return n, errors.Join(errs...)
}

type mutation func(tx *db.Repo, loan *models.Loan, asset *models.Asset) error

// transition locks target's asset, then the loan, refuses terminal
// loans, and runs fn on the locked rows.
func (e *Engine) transition(ctx context.Context, op string, target *models.Loan, fn mutation) (*models.Loan, error) {
	var out *models.Loan
	err := e.repo.Transaction(ctx, op, func(tx *db.Repo) error {
		asset, err := tx.LockAsset(ctx, target.AssetID)
		if err != nil {
			return err
		}
		loan, err := tx.LockLoan(ctx, target.ID)
		if err != nil {
			return err
		}
		if loan.Status.Terminal() {
			return apperr.Refused("loan already " + string(loan.Status))
		}
		if err := fn(tx, loan, asset); err != nil {
			return err
		}
		out = loan
		return nil
	})
	if err != nil {
		e.logger.DebugContext(ctx, "transition refused", "op", op, "loan_id", target.ID, "err", err)
		return nil, err
	}
	return out, nil
}

func (e *Engine) notify(ctx context.Context, kind notify.Kind, loan *models.Loan, actorID string) {
	ev := notify.Event{
		RecipientID: loan.BorrowerID,
		Kind:        kind,
		LoanID:      loan.ID,
		AssetID:     loan.AssetID,
		ActorID:     actorID,
		At:          e.clock.Now(),
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "notify failed", "kind", kind, "loan_id", loan.ID, "err", err)
	}
}
