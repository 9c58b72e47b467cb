package main

import (
	"asset_lending_tool/db/dbtest"
	"asset_lending_tool/models"
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	return path
}

func TestMigrate(t *testing.T) {
	useSQLite(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")
}

func TestSweepOverdue(t *testing.T) {
	path := useSQLite(t)
	repo := dbtest.Open(t, path)
	fx := dbtest.Seed(t, repo)
	ctx := context.Background()

	l := &models.Loan{
		ID:          uuid.NewString(),
		AssetID:     fx.Asset.ID,
		BorrowerID:  fx.Borrower.ID,
		RequestedAt: time.Now(),
		StartDate:   models.NewDate(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		DueDate:     models.NewDate(time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)),
		Status:      models.LoanApproved,
	}
	require.NoError(t, repo.CreateLoan(ctx, l))

	out, err := run(t, "sweep-overdue", "--as-of", "2024-06-06", "--no-lease")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 1 loan(s) overdue as of 2024-06-06")

	out, err = run(t, "sweep-overdue", "--as-of", "2024-06-06", "--no-lease")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 0 loan(s)")

	got, err := repo.FindLoanByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, got.Status)

	ns, err := repo.ListNotifications(ctx, fx.Borrower.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "loan_overdue", ns[0].Kind)
}

func TestSweepOverdueBadDate(t *testing.T) {
	useSQLite(t)
	_, err := run(t, "sweep-overdue", "--as-of", "June 6", "--no-lease")
	assert.ErrorContains(t, err, "--as-of")
}

func TestRecomputeCounts(t *testing.T) {
	path := useSQLite(t)
	repo := dbtest.Open(t, path)
	fx := dbtest.Seed(t, repo)
	ctx := context.Background()

	// Drift the stored counts behind the engine's back.
	require.NoError(t, repo.DB.Model(&models.Item{}).Where("id = ?", fx.Item.ID).
		Updates(map[string]any{"total_quantity": 9, "available_quantity": 9}).Error)

	out, err := run(t, "recompute-counts", "--org", fx.Org.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "recomputed 1 item(s)")

	it, err := repo.FindItemByID(ctx, fx.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, it.TotalQuantity)
	assert.Equal(t, 1, it.AvailableQuantity)
}
