package db

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/models"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
	// LockTimeout bounds how long a PostgreSQL transaction waits on a row
	// lock before failing with a retryable error. Zero keeps the server
	// default.
	LockTimeout time.Duration
}

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Transaction runs fn in one database transaction with a Repo bound to
// it. Any error rolls everything back. Lock timeouts, deadlocks and
// serialization failures come back as *apperr.ConcurrencyError.
func (r *Repo) Transaction(ctx context.Context, op string, fn func(tx *Repo) error) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.LockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.LockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(&Repo{DB: tx, LockTimeout: r.LockTimeout})
	})
	return classify(op, err)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01": // lock_not_available, serialization_failure, deadlock_detected
			return &apperr.ConcurrencyError{Op: op, Err: err}
		case "23P01": // exclusion_violation
			return &apperr.ConflictError{}
		}
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) && (sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked) {
		return &apperr.ConcurrencyError{Op: op, Err: err}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// notFound turns gorm's not-found into apperr.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(apperr.ErrNotFound, what)
	}
	return errors.Wrapf(err, "find %s", what)
}

// Users

// 按 ID 查
func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return apperr.Invalid("username", "is required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	return errors.Wrap(r.DB.WithContext(ctx).Create(u).Error, "create user")
}

func (r *Repo) CreateOrganization(ctx context.Context, o *models.Organization) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return errors.Wrap(r.DB.WithContext(ctx).Create(o).Error, "create organization")
}

func (r *Repo) FindOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	var o models.Organization
	if err := r.DB.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "organization")
	}
	return &o, nil
}
