package controllers

import (
	"asset_lending_tool/models"
	"time"
)

// LoanView is a loan as sent over HTTP: calendar dates as YYYY-MM-DD,
// instants as RFC 3339.
type LoanView struct {
	ID          string            `json:"id"`
	AssetID     string            `json:"assetId"`
	BorrowerID  string            `json:"borrowerId"`
	Status      models.LoanStatus `json:"status"`
	StartDate   string            `json:"startDate,omitempty"`
	DueDate     string            `json:"dueDate,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	RequestedAt time.Time         `json:"requestedAt"`
	ApprovedAt  *time.Time        `json:"approvedAt,omitempty"`
	PickupAt    *time.Time        `json:"pickupAt,omitempty"`
	ReturnAt    *time.Time        `json:"returnAt,omitempty"`
}

func viewLoan(l *models.Loan) LoanView {
	v := LoanView{
		ID:          l.ID,
		AssetID:     l.AssetID,
		BorrowerID:  l.BorrowerID,
		Status:      l.Status,
		Reason:      l.Reason,
		RequestedAt: l.RequestedAt,
		ApprovedAt:  l.ApprovedAt,
		PickupAt:    l.PickupAt,
		ReturnAt:    l.ReturnAt,
	}
	if start, due, ok := l.Range(); ok {
		v.StartDate = start.Format(time.DateOnly)
		v.DueDate = due.Format(time.DateOnly)
	}
	return v
}

func viewLoans(ls []models.Loan) []LoanView {
	out := make([]LoanView, 0, len(ls))
	for i := range ls {
		out = append(out, viewLoan(&ls[i]))
	}
	return out
}
