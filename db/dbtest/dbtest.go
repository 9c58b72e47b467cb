// Package dbtest opens throwaway SQLite-backed repositories and seeds
// the rows most tests need.
package dbtest

import (
	"asset_lending_tool/db"
	"asset_lending_tool/models"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// New returns a migrated Repo on a fresh database file under t.TempDir().
func New(t testing.TB) *db.Repo {
	t.Helper()
	return Open(t, filepath.Join(t.TempDir(), "test.db"))
}

// Open returns a migrated Repo on the SQLite file at path.
func Open(t testing.TB, path string) *db.Repo {
	t.Helper()
	conn, err := db.Open(db.Options{Driver: "sqlite", DSN: db.SQLiteDSN(path)})
	require.NoError(t, err, "open db")
	require.NoError(t, db.Migrate(conn, slog.New(slog.DiscardHandler)), "migrate")
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db.NewRepo(conn)
}

// Fixture is one organization with an admin, a borrower, an item and a
// single available asset.
type Fixture struct {
	Org      *models.Organization
	Admin    *models.User
	Borrower *models.User
	Item     *models.Item
	Asset    *models.Asset
}

func Seed(t testing.TB, r *db.Repo) *Fixture {
	t.Helper()
	org := Org(t, r, "Physics Lab")
	it := Item(t, r, org.ID, "Projector Model Z")
	return &Fixture{
		Org:      org,
		Admin:    User(t, r, "admin", org.ID, true),
		Borrower: User(t, r, "alice", org.ID, false),
		Item:     it,
		Asset:    Asset(t, r, it.ID, "SN-001"),
	}
}

func Org(t testing.TB, r *db.Repo, name string) *models.Organization {
	t.Helper()
	o := &models.Organization{Name: name}
	require.NoError(t, r.CreateOrganization(context.Background(), o))
	return o
}

// User creates a member of orgID; an empty orgID leaves the user
// without an organization.
func User(t testing.TB, r *db.Repo, username, orgID string, admin bool) *models.User {
	t.Helper()
	u := &models.User{Username: username, IsOrgAdmin: admin}
	if orgID != "" {
		u.OrganizationID = &orgID
	}
	require.NoError(t, r.CreateUser(context.Background(), u))
	return u
}

func Item(t testing.TB, r *db.Repo, orgID, name string) *models.Item {
	t.Helper()
	it := &models.Item{OrganizationID: orgID, Name: name}
	require.NoError(t, r.CreateItem(context.Background(), it))
	return it
}

// Asset adds an available asset identified by serial.
func Asset(t testing.TB, r *db.Repo, itemID, serial string) *models.Asset {
	t.Helper()
	a := &models.Asset{ItemID: itemID, SerialNumber: &serial}
	require.NoError(t, r.CreateAsset(context.Background(), a))
	return a
}
