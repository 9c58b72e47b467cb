package db

import (
	"asset_lending_tool/models"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Options selects the dialect and connection string.
type Options struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

// SQLiteDSN builds a DSN for a local SQLite file. Write transactions
// start with BEGIN IMMEDIATE so they queue on the database lock the way
// row locks queue on PostgreSQL.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate&_journal_mode=WAL", path)
}

func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "postgres":
		dialector = postgres.Open(opts.DSN)
	case "sqlite":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unknown db driver %q", opts.Driver)
	}
	conn, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}
	return conn, nil
}

func Migrate(db *gorm.DB, logger *slog.Logger) error {
	if err := db.AutoMigrate(
		&models.Organization{}, &models.User{},
		&models.Item{}, &models.Asset{}, &models.Loan{},
		&models.Notification{},
	); err != nil {
		return err
	}

	// 同一资产最多一条“已取走未归还”
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_pickup_per_asset
	  ON %s (asset_id)
	  WHERE pickup_at IS NOT NULL AND return_at IS NULL;
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	if db.Dialector.Name() == "postgres" {
		if err := migrateExclusion(db); err != nil {
			// The asset row lock is what keeps live loans apart; the
			// constraint only backs it up.
			logger.Warn("live-loan exclusion constraint not installed", "err", err)
		}
	}
	return nil
}

func migrateExclusion(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist`).Error; err != nil {
		return err
	}
	var n int64
	if err := db.Raw(`SELECT COUNT(*) FROM pg_constraint WHERE conname = ?`, models.LoanTable+"_no_live_overlap").
		Scan(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return db.Exec(fmt.Sprintf(`
	  ALTER TABLE %s ADD CONSTRAINT %s_no_live_overlap
	  EXCLUDE USING gist (asset_id WITH =, daterange(start_date, due_date, '[]') WITH &&)
	  WHERE (status IN ('pending', 'approved'));
	`, models.LoanTable, models.LoanTable)).Error
}
