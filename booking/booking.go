// Package booking decides whether a date range may be booked on an
// asset: range policy plus the closed-interval overlap rule.
//
// All dates are calendar dates carried as UTC midnights. Ranges are
// inclusive at both ends, so a loan due on the 15th and another starting
// on the 15th conflict.
package booking

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/clock"
	"asset_lending_tool/models"
	"context"
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Policy holds the organization's booking rules.
type Policy struct {
	// MaxSpanDays caps due - start + 1. Zero means no cap.
	MaxSpanDays int
	// PickupToleranceDays lets pickup start this many days early.
	PickupToleranceDays int
	// Location is the calendar "today" is taken in. Nil means UTC.
	Location *time.Location
}

// DefaultPolicy allows loans of up to 30 days with no early pickup.
func DefaultPolicy() Policy {
	return Policy{MaxSpanDays: 30, Location: time.UTC}
}

// Range is a closed interval of calendar dates.
type Range struct {
	Start time.Time
	Due   time.Time
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(time.DateOnly), r.Due.Format(time.DateOnly))
}

// Days is the inclusive length of r.
func (r Range) Days() int { return int(r.Due.Sub(r.Start)/day) + 1 }

// Overlaps reports whether a and b share at least one day.
func Overlaps(a, b Range) bool {
	return !a.Start.After(b.Due) && !b.Start.After(a.Due)
}

// DateOf is t's calendar date in loc, as a UTC midnight.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p Policy) Today(c clock.Clock) time.Time { return clock.Today(c, p.Location) }

// ValidateRange checks a proposed range. start and due may be zero,
// meaning unset. isNew additionally forbids starting in the past.
func (p Policy) ValidateRange(start, due, today time.Time, isNew bool) (Range, error) {
	if start.IsZero() {
		return Range{}, apperr.Invalid("start_date", "is required")
	}
	if due.IsZero() {
		return Range{}, apperr.Invalid("due_date", "is required")
	}
	r := Range{Start: DateOf(start, time.UTC), Due: DateOf(due, time.UTC)}
	if r.Due.Before(r.Start.Add(day)) {
		return Range{}, apperr.Invalid("due_date", "must be after start_date")
	}
	if p.MaxSpanDays > 0 && r.Days() > p.MaxSpanDays {
		return Range{}, apperr.Invalid("due_date", fmt.Sprintf("loans may span at most %d days", p.MaxSpanDays))
	}
	if isNew && r.Start.Before(today) {
		return Range{}, apperr.Invalid("start_date", "must not be in the past")
	}
	return r, nil
}

// PickupOpen reports whether pickup of a loan starting on start is
// allowed on today.
func (p Policy) PickupOpen(start, today time.Time) bool {
	return !today.Before(start.AddDate(0, 0, -p.PickupToleranceDays))
}

// LoanFinder is the store query the engine needs: loans on assetID with
// a status in statuses whose range meets [start, due], excluding
// excludeID. Implementations lock what they return when called inside a
// transaction.
type LoanFinder interface {
	OverlappingLoans(ctx context.Context, assetID string, start, due time.Time, statuses []models.LoanStatus, excludeID string) ([]models.Loan, error)
}

// FindConflict returns the earliest loan that blocks r, or nil. The
// caller must already hold the asset lock.
func FindConflict(ctx context.Context, f LoanFinder, assetID string, r Range, statuses []models.LoanStatus, excludeID string) (*models.Loan, error) {
	ls, err := f.OverlappingLoans(ctx, assetID, r.Start, r.Due, statuses, excludeID)
	if err != nil {
		return nil, err
	}
	for i := range ls {
		s, d, ok := ls[i].Range()
		if ok && Overlaps(r, Range{Start: s, Due: d}) {
			return &ls[i], nil
		}
	}
	return nil, nil
}

// CheckConflict reports whether any loan in statuses overlaps r.
func CheckConflict(ctx context.Context, f LoanFinder, assetID string, r Range, statuses []models.LoanStatus, excludeID string) (bool, error) {
	l, err := FindConflict(ctx, f, assetID, r, statuses, excludeID)
	return l != nil, err
}

// ConflictWith builds the error reported for a blocking loan.
func ConflictWith(l *models.Loan) error {
	s, d, _ := l.Range()
	return &apperr.ConflictError{LoanID: l.ID, Start: s, Due: d}
}
