// Package config reads settings from .env and the environment.
package config

import (
	"asset_lending_tool/booking"
	"asset_lending_tool/db"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env into the environment. Variables already set win.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env loaded, using the environment", "err", err)
	}
}

type Config struct {
	DBDriver    string // postgres | sqlite
	DatabaseURL string
	SQLitePath  string
	LockTimeout time.Duration

	RedisAddr string
	RedisPwd  string

	Port      string
	WebOrigin string

	MaxSpanDays         int
	PickupToleranceDays int
	Location            *time.Location

	SweepLeaseTTL time.Duration
	SweepInterval time.Duration // 0: no in-process sweep
	NotifyStream  string

	// 首次启动时创建的组织与管理员
	BootstrapOrg   string
	BootstrapAdmin string
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// Load builds a Config from the environment. Malformed numbers and
// durations are errors rather than silent defaults.
func Load() (Config, error) {
	c := Config{
		DBDriver:     get("DB_DRIVER", "postgres"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   get("SQLITE_PATH", "lending.db"),
		RedisAddr:    get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:     os.Getenv("REDIS_PASSWORD"),
		Port:         get("PORT", "3001"),
		WebOrigin:    get("WEB_ORIGIN", "http://localhost:5173"),
		NotifyStream: get("NOTIFY_STREAM", "lending:events"),

		BootstrapOrg:   os.Getenv("BOOTSTRAP_ORG"),
		BootstrapAdmin: os.Getenv("BOOTSTRAP_ADMIN"),
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			get("DB_HOST", "127.0.0.1"),
			get("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			get("DB_NAME", "lending"),
			get("DB_PORT", "5432"),
		)
	}

	var err error
	if c.MaxSpanDays, err = intVar("LOAN_MAX_SPAN_DAYS", 30); err != nil {
		return c, err
	}
	if c.PickupToleranceDays, err = intVar("LOAN_PICKUP_TOLERANCE_DAYS", 0); err != nil {
		return c, err
	}
	if c.Location, err = time.LoadLocation(get("LOAN_TIMEZONE", "UTC")); err != nil {
		return c, fmt.Errorf("LOAN_TIMEZONE: %w", err)
	}
	if c.LockTimeout, err = durationVar("DB_LOCK_TIMEOUT", 5*time.Second); err != nil {
		return c, err
	}
	if c.SweepLeaseTTL, err = durationVar("SWEEP_LEASE_TTL", 5*time.Minute); err != nil {
		return c, err
	}
	if c.SweepInterval, err = durationVar("SWEEP_INTERVAL", 0); err != nil {
		return c, err
	}
	return c, nil
}

func intVar(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: want a non-negative integer, got %q", k, v)
	}
	return n, nil
}

func durationVar(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func (c Config) DBOptions() db.Options {
	if c.DBDriver == "sqlite" {
		return db.Options{Driver: "sqlite", DSN: db.SQLiteDSN(c.SQLitePath)}
	}
	return db.Options{Driver: "postgres", DSN: c.DatabaseURL}
}

func (c Config) Policy() booking.Policy {
	return booking.Policy{
		MaxSpanDays:         c.MaxSpanDays,
		PickupToleranceDays: c.PickupToleranceDays,
		Location:            c.Location,
	}
}
