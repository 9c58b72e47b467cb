package lifecycle

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/booking"
	"asset_lending_tool/clock"
	"asset_lending_tool/db"
	"asset_lending_tool/db/dbtest"
	"asset_lending_tool/models"
	"asset_lending_tool/notify"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type harness struct {
	engine *Engine
	repo   *db.Repo
	fx     *dbtest.Fixture
	clock  *clock.FakeClock
	sent   *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := dbtest.New(t)
	h := &harness{
		repo:  repo,
		fx:    dbtest.Seed(t, repo),
		clock: clock.Fake(time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)),
		sent:  &recorder{},
	}
	h.engine = New(repo, Config{
		Clock:    h.clock,
		Policy:   booking.DefaultPolicy(),
		Notifier: h.sent,
		Logger:   slog.New(slog.DiscardHandler),
	})
	return h
}

func d(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func (h *harness) request(t *testing.T, start, due string) (*models.Loan, error) {
	t.Helper()
	return h.engine.Request(context.Background(), RequestInput{
		OrganizationID: h.fx.Org.ID,
		AssetID:        h.fx.Asset.ID,
		BorrowerID:     h.fx.Borrower.ID,
		StartDate:      d(start),
		DueDate:        d(due),
		Reason:         "lab session",
	})
}

func (h *harness) approved(t *testing.T, start, due string) *models.Loan {
	t.Helper()
	l, err := h.request(t, start, due)
	require.NoError(t, err)
	l, err = h.engine.Approve(context.Background(), h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	require.NoError(t, err)
	return l
}

func (h *harness) pickedUp(t *testing.T, start, due string) *models.Loan {
	t.Helper()
	l := h.approved(t, start, due)
	h.clock.Set(d(start).Add(9 * time.Hour))
	l, err := h.engine.StartPickup(context.Background(), h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	require.NoError(t, err)
	return l
}

func (h *harness) asset(t *testing.T) *models.Asset {
	t.Helper()
	a, err := h.repo.FindAssetByID(context.Background(), h.fx.Asset.ID)
	require.NoError(t, err)
	return a
}

func (h *harness) item(t *testing.T) *models.Item {
	t.Helper()
	it, err := h.repo.FindItemByID(context.Background(), h.fx.Item.ID)
	require.NoError(t, err)
	return it
}

func requireGuard(t *testing.T, err error, guard string) {
	t.Helper()
	var se *apperr.StateTransitionError
	require.ErrorAs(t, err, &se)
	if guard != "" {
		assert.Equal(t, guard, se.Guard)
	}
}

func TestSharedBoundaryConflicts(t *testing.T) {
	h := newHarness(t)

	a, err := h.request(t, "2024-06-01", "2024-06-05")
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, a.Status)
	assert.Equal(t, h.clock.Now(), a.RequestedAt)

	_, err = h.request(t, "2024-06-05", "2024-06-08")
	var ce *apperr.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, a.ID, ce.LoanID)
	assert.Equal(t, d("2024-06-01"), ce.Start)
	assert.Equal(t, d("2024-06-05"), ce.Due)

	_, err = h.request(t, "2024-06-06", "2024-06-08")
	require.NoError(t, err)
	assert.Equal(t, []notify.Kind{notify.LoanRequested, notify.LoanRequested}, h.sent.kinds())
}

func TestApproveThenPickup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	l := h.approved(t, "2024-06-01", "2024-06-05")
	assert.Equal(t, models.LoanApproved, l.Status)
	require.NotNil(t, l.ApprovedAt)
	assert.Equal(t, models.AssetAvailable, h.asset(t).Status, "approval must not touch the asset")
	assert.Equal(t, 1, h.item(t).AvailableQuantity)

	_, err := h.engine.StartPickup(ctx, h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	requireGuard(t, err, "pickup not open before 2024-06-01")

	h.clock.Set(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	l, err = h.engine.StartPickup(ctx, h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, l.Status)
	require.NotNil(t, l.PickupAt)
	assert.Equal(t, models.AssetOnLoan, h.asset(t).Status)
	assert.Equal(t, 0, h.item(t).AvailableQuantity)

	_, err = h.engine.StartPickup(ctx, h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	requireGuard(t, err, "already picked up")

	assert.Equal(t, []notify.Kind{notify.LoanRequested, notify.LoanApproved, notify.LoanPickedUp}, h.sent.kinds())
}

func TestPickupTolerance(t *testing.T) {
	h := newHarness(t)
	h.engine.policy.PickupToleranceDays = 2

	l := h.approved(t, "2024-06-01", "2024-06-05")
	h.clock.Set(time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC))
	_, err := h.engine.StartPickup(context.Background(), h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	require.NoError(t, err)
}

func TestRejectAfterPickupRefused(t *testing.T) {
	h := newHarness(t)
	l := h.pickedUp(t, "2024-06-01", "2024-06-05")

	_, err := h.engine.Reject(context.Background(), h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	requireGuard(t, err, "asset already checked out; use return instead")

	got, err := h.repo.FindLoanByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, got.Status)
	assert.Equal(t, models.AssetOnLoan, h.asset(t).Status)
}

func TestRejectPendingAndApproved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.request(t, "2024-06-01", "2024-06-05")
	require.NoError(t, err)
	p, err = h.engine.Reject(ctx, h.fx.Org.ID, p.ID, h.fx.Admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanRejected, p.Status)

	a := h.approved(t, "2024-06-01", "2024-06-05")
	a, err = h.engine.Reject(ctx, h.fx.Org.ID, a.ID, h.fx.Admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanRejected, a.Status)
	assert.Equal(t, models.AssetAvailable, h.asset(t).Status)

	// The slot is free again.
	_, err = h.request(t, "2024-06-03", "2024-06-04")
	require.NoError(t, err)
}

func TestRejectRefusedWhileAssetOut(t *testing.T) {
	h := newHarness(t)
	h.pickedUp(t, "2024-06-01", "2024-06-05")

	next, err := h.request(t, "2024-06-10", "2024-06-12")
	require.NoError(t, err)
	_, err = h.engine.Reject(context.Background(), h.fx.Org.ID, next.ID, h.fx.Admin.ID)
	requireGuard(t, err, "asset already checked out; use return instead")

	got, err := h.repo.FindLoanByID(context.Background(), next.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, got.Status)
	assert.Equal(t, models.AssetOnLoan, h.asset(t).Status)
}

func TestRejectReleasesAsset(t *testing.T) {
	for _, status := range []models.AssetStatus{models.AssetMaintenance, models.AssetRetired} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			l, err := h.request(t, "2024-06-01", "2024-06-05")
			require.NoError(t, err)
			_, err = h.repo.SetMaintenanceStatus(ctx, h.fx.Asset.ID, status)
			require.NoError(t, err)
			require.Equal(t, 0, h.item(t).AvailableQuantity)

			l, err = h.engine.Reject(ctx, h.fx.Org.ID, l.ID, h.fx.Admin.ID)
			require.NoError(t, err)
			assert.Equal(t, models.LoanRejected, l.Status)
			assert.Equal(t, models.AssetAvailable, h.asset(t).Status)
			assert.Equal(t, 1, h.item(t).AvailableQuantity)
		})
	}
}

func TestSweepOverdueIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.approved(t, "2024-06-01", "2024-06-05")
	pending, err := h.request(t, "2024-06-20", "2024-06-22")
	require.NoError(t, err)

	n, err := h.engine.SweepOverdue(ctx, d("2024-06-05"))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "due today is not overdue yet")

	n, err = h.engine.SweepOverdue(ctx, d("2024-06-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.engine.SweepOverdue(ctx, d("2024-06-06"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := h.repo.FindLoanByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, got.Status)
	got, err = h.repo.FindLoanByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, got.Status)

	assert.Equal(t, notify.LoanOverdue, h.sent.kinds()[len(h.sent.kinds())-1])
}

func TestMarkOverdueGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.request(t, "2024-06-01", "2024-06-05")
	require.NoError(t, err)
	_, err = h.engine.MarkOverdue(ctx, p.ID, d("2024-07-01"))
	requireGuard(t, err, "not approved")

	l := h.approved(t, "2024-06-10", "2024-06-12")
	_, err = h.engine.MarkOverdue(ctx, l.ID, d("2024-06-12"))
	requireGuard(t, err, "not yet due")
}

func TestReturnOverdueLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.pickedUp(t, "2024-06-01", "2024-06-05")

	n, err := h.engine.SweepOverdue(ctx, d("2024-06-07"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	l, err = h.engine.Return(ctx, h.fx.Org.ID, l.ID, h.fx.Borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, l.Status)
	require.NotNil(t, l.ReturnAt)
	assert.Equal(t, models.AssetAvailable, h.asset(t).Status)
	assert.Equal(t, 1, h.item(t).AvailableQuantity)
}

func TestReturnRequiresPickup(t *testing.T) {
	h := newHarness(t)
	l := h.approved(t, "2024-06-01", "2024-06-05")

	_, err := h.engine.Return(context.Background(), h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	requireGuard(t, err, "asset not checked out")
}

func TestOverdueLoanCannotBeRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.approved(t, "2024-06-01", "2024-06-05")

	n, err := h.engine.SweepOverdue(ctx, d("2024-06-10"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = h.engine.Reject(ctx, h.fx.Org.ID, l.ID, h.fx.Admin.ID)
	requireGuard(t, err, "not pending or approved")
	got, err := h.repo.FindLoanByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, got.Status)
}

func TestSpanTooLong(t *testing.T) {
	h := newHarness(t)

	_, err := h.request(t, "2024-06-10", "2024-07-20")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "due_date", ve.Field)

	ls, err := h.repo.ListLoans(context.Background(), db.LoanFilter{OrganizationID: h.fx.Org.ID})
	require.NoError(t, err)
	assert.Empty(t, ls)
	assert.Empty(t, h.sent.kinds())
}

func TestRequestGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.request(t, "2024-05-19", "2024-05-22")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = h.engine.Request(ctx, RequestInput{
		OrganizationID: h.fx.Org.ID,
		AssetID:        h.fx.Asset.ID,
		BorrowerID:     "00000000-0000-0000-0000-000000000000",
		StartDate:      d("2024-06-01"),
		DueDate:        d("2024-06-02"),
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	other := dbtest.Org(t, h.repo, "Chemistry Lab")
	chemist := dbtest.User(t, h.repo, "dora", other.ID, false)
	_, err = h.engine.Request(ctx, RequestInput{
		OrganizationID: other.ID,
		AssetID:        h.fx.Asset.ID,
		BorrowerID:     chemist.ID,
		StartDate:      d("2024-06-01"),
		DueDate:        d("2024-06-02"),
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)

	// Naming the asset's organization does not make an outsider a member.
	_, err = h.engine.Request(ctx, RequestInput{
		OrganizationID: h.fx.Org.ID,
		AssetID:        h.fx.Asset.ID,
		BorrowerID:     chemist.ID,
		StartDate:      d("2024-06-01"),
		DueDate:        d("2024-06-02"),
	})
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)

	_, err = h.repo.SetMaintenanceStatus(ctx, h.fx.Asset.ID, models.AssetRetired)
	require.NoError(t, err)
	_, err = h.request(t, "2024-06-01", "2024-06-02")
	requireGuard(t, err, "asset retired")
}

func TestApproveRechecksApprovedLoans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Two overlapping pending rows can only exist if written around the
	// engine; approval must still keep approved loans apart.
	first, err := h.request(t, "2024-06-01", "2024-06-05")
	require.NoError(t, err)
	second := &models.Loan{
		ID:          "11111111-1111-1111-1111-111111111111",
		AssetID:     h.fx.Asset.ID,
		BorrowerID:  h.fx.Borrower.ID,
		RequestedAt: h.clock.Now(),
		StartDate:   models.NewDate(d("2024-06-04")),
		DueDate:     models.NewDate(d("2024-06-08")),
		Status:      models.LoanPending,
	}
	require.NoError(t, h.repo.CreateLoan(ctx, second))

	_, err = h.engine.Approve(ctx, h.fx.Org.ID, first.ID, h.fx.Admin.ID)
	require.NoError(t, err)
	_, err = h.engine.Approve(ctx, h.fx.Org.ID, second.ID, h.fx.Admin.ID)
	var ce *apperr.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, first.ID, ce.LoanID)

	_, err = h.engine.Approve(ctx, h.fx.Org.ID, first.ID, h.fx.Admin.ID)
	requireGuard(t, err, "not pending")
}

func TestTerminalLoansAreImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	org, admin := h.fx.Org.ID, h.fx.Admin.ID

	returned := h.pickedUp(t, "2024-06-01", "2024-06-05")
	returned, err := h.engine.Return(ctx, org, returned.ID, admin)
	require.NoError(t, err)

	rejected, err := h.request(t, "2024-06-10", "2024-06-12")
	require.NoError(t, err)
	rejected, err = h.engine.Reject(ctx, org, rejected.ID, admin)
	require.NoError(t, err)

	for _, l := range []*models.Loan{returned, rejected} {
		transitions := map[string]func() (*models.Loan, error){
			"approve":      func() (*models.Loan, error) { return h.engine.Approve(ctx, org, l.ID, admin) },
			"pickup":       func() (*models.Loan, error) { return h.engine.StartPickup(ctx, org, l.ID, admin) },
			"reject":       func() (*models.Loan, error) { return h.engine.Reject(ctx, org, l.ID, admin) },
			"return":       func() (*models.Loan, error) { return h.engine.Return(ctx, org, l.ID, admin) },
			"mark overdue": func() (*models.Loan, error) { return h.engine.MarkOverdue(ctx, l.ID, d("2025-01-01")) },
		}
		for name, fn := range transitions {
			_, err := fn()
			requireGuard(t, err, "loan already "+string(l.Status))
			got, err := h.repo.FindLoanByID(ctx, l.ID)
			require.NoError(t, err)
			assert.Equal(t, l.Status, got.Status, name)
		}
	}
}

func TestConcurrentRequestsBookOnce(t *testing.T) {
	h := newHarness(t)
	const callers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every range contains 2024-06-05.
			start := d("2024-06-01").AddDate(0, 0, i%4)
			_, err := h.engine.Request(context.Background(), RequestInput{
				OrganizationID: h.fx.Org.ID,
				AssetID:        h.fx.Asset.ID,
				BorrowerID:     h.fx.Borrower.ID,
				StartDate:      start,
				DueDate:        d("2024-06-05").AddDate(0, 0, i%3),
			})
			var ce *apperr.ConflictError
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.As(err, &ce), apperr.Retryable(err):
			default:
				t.Errorf("request %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	ls, err := h.repo.ListLoans(context.Background(), db.LoanFilter{OrganizationID: h.fx.Org.ID})
	require.NoError(t, err)
	assert.Len(t, ls, 1)
}

// overlappingApproved reports any pair of approved loans on the asset
// whose ranges overlap.
func overlappingApproved(t *testing.T, h *harness) [][2]string {
	t.Helper()
	ls, err := h.repo.ListLoans(context.Background(), db.LoanFilter{
		OrganizationID: h.fx.Org.ID,
		AssetID:        h.fx.Asset.ID,
		Status:         models.LoanApproved,
	})
	require.NoError(t, err)
	var out [][2]string
	for i := range ls {
		for j := i + 1; j < len(ls); j++ {
			as, ad, _ := ls[i].Range()
			bs, bd, _ := ls[j].Range()
			if booking.Overlaps(booking.Range{Start: as, Due: ad}, booking.Range{Start: bs, Due: bd}) {
				out = append(out, [2]string{ls[i].ID, ls[j].ID})
			}
		}
	}
	return out
}

func TestConcurrentApprovalsBookOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const callers = 6

	// Overlapping pending rows only arise from writes around the engine,
	// e.g. an import; approval alone has to keep them apart.
	ids := make([]string, callers)
	for i := range ids {
		l := &models.Loan{
			ID:          uuid.NewString(),
			AssetID:     h.fx.Asset.ID,
			BorrowerID:  h.fx.Borrower.ID,
			RequestedAt: h.clock.Now(),
			StartDate:   models.NewDate(d("2024-06-01").AddDate(0, 0, i%3)),
			DueDate:     models.NewDate(d("2024-06-05")),
			Status:      models.LoanPending,
		}
		require.NoError(t, h.repo.CreateLoan(ctx, l))
		ids[i] = l.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.engine.Approve(ctx, h.fx.Org.ID, id, h.fx.Admin.ID)
		}(i, id)
	}
	wg.Wait()

	approved := 0
	for i, err := range errs {
		var ce *apperr.ConflictError
		switch {
		case err == nil:
			approved++
		case errors.As(err, &ce), apperr.Retryable(err):
		default:
			t.Errorf("approve %d: unexpected error %v", i, err)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Empty(t, overlappingApproved(t, h))
}

func TestApproveRacingRequest(t *testing.T) {
	for round := 0; round < 5; round++ {
		h := newHarness(t)
		ctx := context.Background()
		pending, err := h.request(t, "2024-06-01", "2024-06-05")
		require.NoError(t, err)

		var (
			wg                 sync.WaitGroup
			approveErr, reqErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = h.engine.Approve(ctx, h.fx.Org.ID, pending.ID, h.fx.Admin.ID)
		}()
		go func() {
			defer wg.Done()
			_, reqErr = h.request(t, "2024-06-04", "2024-06-08")
		}()
		wg.Wait()

		if approveErr != nil {
			assert.True(t, apperr.Retryable(approveErr), "approve: %v", approveErr)
		}
		// The pending loan blocks the request whether or not it has been
		// approved yet.
		var ce *apperr.ConflictError
		if !apperr.Retryable(reqErr) {
			require.ErrorAs(t, reqErr, &ce)
			assert.Equal(t, pending.ID, ce.LoanID)
		}

		live, err := h.repo.ListLoans(ctx, db.LoanFilter{OrganizationID: h.fx.Org.ID})
		require.NoError(t, err)
		assert.Len(t, live, 1)
		assert.Empty(t, overlappingApproved(t, h))
	}
}

func TestConcurrentPickupsCheckOutOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.approved(t, "2024-06-01", "2024-06-03")
	b := h.approved(t, "2024-06-04", "2024-06-06")
	h.clock.Set(time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.engine.StartPickup(ctx, h.fx.Org.ID, id, h.fx.Admin.ID)
		}(i, id)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !apperr.Retryable(err) {
			requireGuard(t, err, "asset not available")
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, models.AssetOnLoan, h.asset(t).Status)
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l, err := h.request(t, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	other := dbtest.Org(t, h.repo, "Chemistry Lab")
	outsider := dbtest.User(t, h.repo, "bob", other.ID, true)

	testCases := []struct {
		name    string
		orgID   string
		actorID string
	}{
		{"plain member", h.fx.Org.ID, h.fx.Borrower.ID},
		{"admin of another org", h.fx.Org.ID, outsider.ID},
		{"admin acting for the wrong org", other.ID, outsider.ID},
		{"unknown user", h.fx.Org.ID, "00000000-0000-0000-0000-000000000000"},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Approve(ctx, tt.orgID, l.ID, tt.actorID)
			assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)
		})
	}

	got, err := h.repo.FindLoanByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, got.Status)
}

func TestReturnByStrangerForbidden(t *testing.T) {
	h := newHarness(t)
	l := h.pickedUp(t, "2024-06-01", "2024-06-05")
	stranger := dbtest.User(t, h.repo, "carol", h.fx.Org.ID, false)

	_, err := h.engine.Return(context.Background(), h.fx.Org.ID, l.ID, stranger.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestListLoansForMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.request(t, "2024-06-01", "2024-06-05")
	require.NoError(t, err)
	_, err = h.engine.Request(ctx, RequestInput{
		OrganizationID: h.fx.Org.ID,
		AssetID:        h.fx.Asset.ID,
		BorrowerID:     h.fx.Admin.ID,
		StartDate:      d("2024-06-10"),
		DueDate:        d("2024-06-11"),
	})
	require.NoError(t, err)

	mine, err := h.engine.ListLoans(ctx, h.fx.Borrower.ID, db.LoanFilter{OrganizationID: h.fx.Org.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := h.engine.ListLoans(ctx, h.fx.Admin.ID, db.LoanFilter{OrganizationID: h.fx.Org.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, ev notify.Event) error {
	return m.Called(ev.Kind, ev.RecipientID).Error(0)
}

func TestNotifierFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	n := new(mockNotifier)
	n.On("Notify", notify.LoanRequested, h.fx.Borrower.ID).Return(errors.New("smtp down")).Once()
	h.engine.notifier = n

	l, err := h.request(t, "2024-06-01", "2024-06-05")
	require.NoError(t, err)

	got, err := h.repo.FindLoanByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, got.Status)
	n.AssertExpectations(t)
}
