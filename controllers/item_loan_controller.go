// controllers/item_loan_controller.go
package controllers

import (
	"asset_lending_tool/app"
	"asset_lending_tool/apperr"
	"asset_lending_tool/db"
	"asset_lending_tool/lifecycle"
	"asset_lending_tool/models"
	"asset_lending_tool/sweep"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type LoanController struct{ *Srv }

func NewLoanController(s *Srv) *LoanController { return &LoanController{Srv: s} }

type requestLoanReq struct {
	StartDate string `json:"startDate"`
	DueDate   string `json:"dueDate"`
	Reason    string `json:"reason"`
}

// 借用申请：POST /api/orgs/:orgId/assets/:assetId/loans
func (lc *LoanController) Request(c *gin.Context) {
	var in requestLoanReq
	if err := c.ShouldBindJSON(&in); err != nil {
		lc.fail(c, apperr.Invalid("", "body must be JSON"))
		return
	}
	start, err := parseDate("start_date", in.StartDate)
	if err != nil {
		lc.fail(c, err)
		return
	}
	due, err := parseDate("due_date", in.DueDate)
	if err != nil {
		lc.fail(c, err)
		return
	}

	loan, err := lc.Engine.Request(c.Request.Context(), lifecycle.RequestInput{
		OrganizationID: c.Param("orgId"),
		AssetID:        c.Param("assetId"),
		BorrowerID:     actorID(c),
		StartDate:      start,
		DueDate:        due,
		Reason:         in.Reason,
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewLoan(loan))
}

type transitionFunc func(ctx context.Context, orgID, loanID, actorID string) (*models.Loan, error)

func (lc *LoanController) transition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		loan, err := fn(c.Request.Context(), c.Param("orgId"), c.Param("loanId"), actorID(c))
		if err != nil {
			lc.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, viewLoan(loan))
	}
}

// 审批 / 取件 / 拒绝 / 归还：POST /api/orgs/:orgId/loans/:loanId/{approve,pickup,reject,return}
func (lc *LoanController) Approve() gin.HandlerFunc { return lc.transition(lc.Engine.Approve) }
func (lc *LoanController) Pickup() gin.HandlerFunc  { return lc.transition(lc.Engine.StartPickup) }
func (lc *LoanController) Reject() gin.HandlerFunc  { return lc.transition(lc.Engine.Reject) }
func (lc *LoanController) Return() gin.HandlerFunc  { return lc.transition(lc.Engine.Return) }

// 借还记录：GET /api/orgs/:orgId/loans?status=&assetId=&borrowerId=
func (lc *LoanController) ListLoans(c *gin.Context) {
	f := db.LoanFilter{
		OrganizationID: c.Param("orgId"),
		Status:         models.LoanStatus(c.Query("status")),
		AssetID:        c.Query("assetId"),
		BorrowerID:     c.Query("borrowerId"),
	}
	switch f.Status {
	case "", models.LoanPending, models.LoanApproved, models.LoanReturned, models.LoanRejected, models.LoanOverdue:
	default:
		lc.fail(c, apperr.Invalid("status", "unknown loan status"))
		return
	}
	ls, err := lc.Engine.ListLoans(c.Request.Context(), actorID(c), f)
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": viewLoans(ls)})
}

// 逾期扫描：POST /api/orgs/:orgId/loans/sweep-overdue?asOf=YYYY-MM-DD
func (lc *LoanController) SweepOverdue(c *gin.Context) {
	asOf, err := parseDate("asOf", c.Query("asOf"))
	if err != nil {
		lc.fail(c, err)
		return
	}
	if asOf.IsZero() {
		asOf = lc.Engine.Today()
	}

	var n int
	if lc.Sweep != nil {
		n, err = lc.Sweep.Run(c.Request.Context(), asOf)
	} else {
		n, err = lc.Engine.SweepOverdue(c.Request.Context(), asOf)
	}
	if errors.Is(err, sweep.ErrBusy) {
		c.Header("Retry-After", "5")
		c.JSON(http.StatusConflict, app.H{"error": "An overdue sweep for this date is already running."})
		return
	}
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "asOf": asOf.Format(time.DateOnly), "updated": n})
}
