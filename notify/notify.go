// Package notify delivers loan events to borrowers. Delivery is
// fire-and-forget from the engine's point of view: a failed send is
// logged and never undoes a committed transition.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Kind string

const (
	LoanRequested Kind = "loan_requested"
	LoanApproved  Kind = "loan_approved"
	LoanPickedUp  Kind = "loan_picked_up"
	LoanRejected  Kind = "loan_rejected"
	LoanReturned  Kind = "loan_returned"
	LoanOverdue   Kind = "loan_overdue"
)

// Event is one committed lifecycle transition.
type Event struct {
	RecipientID string    `json:"recipientId"`
	Kind        Kind      `json:"kind"`
	LoanID      string    `json:"loanId"`
	AssetID     string    `json:"assetId,omitempty"`
	ActorID     string    `json:"actorId,omitempty"`
	At          time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, ev Event) error

func (f Func) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Log writes every event to a structured logger. It never fails.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, ev Event) error {
	l.Logger.InfoContext(ctx, "loan event",
		"kind", ev.Kind,
		"loan_id", ev.LoanID,
		"recipient_id", ev.RecipientID,
		"actor_id", ev.ActorID,
	)
	return nil
}

// Multi sends to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
