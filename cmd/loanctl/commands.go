package main

import (
	"asset_lending_tool/clock"
	"asset_lending_tool/config"
	"asset_lending_tool/db"
	"asset_lending_tool/lifecycle"
	"asset_lending_tool/notify"
	"asset_lending_tool/sweep"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type env struct {
	cfg    config.Config
	logger *slog.Logger
	repo   *db.Repo
}

func (e *env) close() {
	if e.repo == nil {
		return
	}
	if sqlDB, err := e.repo.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var (
		envFile string
		verbose bool
	)
	root := &cobra.Command{
		Use:           "loanctl",
		Short:         "Batch jobs for the asset lending service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			e.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			if envFile != "" {
				config.LoadEnv(envFile)
			} else {
				config.LoadEnv()
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			conn, err := db.Open(cfg.DBOptions())
			if err != nil {
				return err
			}
			e.repo = db.NewRepo(conn)
			e.repo.LockTimeout = cfg.LockTimeout
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) { e.close() },
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load settings from this file instead of ./.env")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newMigrateCmd(e), newSweepCmd(e), newRecomputeCmd(e))
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := db.Migrate(e.repo.DB, e.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSweepCmd(e *env) *cobra.Command {
	var (
		asOf    string
		noLease bool
	)
	cmd := &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark approved loans past their due date as overdue",
		Long: "Marks every approved loan due before --as-of (default: today in LOAN_TIMEZONE) as overdue.\n" +
			"Safe to run repeatedly; a second run for the same date changes nothing.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			notifier := notify.Multi{notify.Log{Logger: e.logger}, notify.Inbox{Repo: e.repo}}
			runner := &sweep.Runner{TTL: e.cfg.SweepLeaseTTL, Logger: e.logger}
			if !noLease {
				if rdb := dialRedis(ctx, e.cfg, e.logger); rdb != nil {
					defer rdb.Close()
					runner.Redis = rdb
					notifier = append(notifier, notify.Redis{Client: rdb, Stream: e.cfg.NotifyStream})
				}
			}
			engine := lifecycle.New(e.repo, lifecycle.Config{
				Clock:    clock.Real(),
				Policy:   e.cfg.Policy(),
				Notifier: notifier,
				Logger:   e.logger,
			})
			runner.Sweeper = engine

			day := engine.Today()
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				day = t
			}
			n, err := runner.Run(ctx, day)
			if errors.Is(err, sweep.ErrBusy) {
				fmt.Fprintf(cmd.OutOrStdout(), "sweep for %s already running elsewhere\n", day.Format(time.DateOnly))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d loan(s) overdue as of %s\n", n, day.Format(time.DateOnly))
			return err
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "sweep date, YYYY-MM-DD")
	cmd.Flags().BoolVar(&noLease, "no-lease", false, "skip the Redis lease and stream")
	return cmd
}

func newRecomputeCmd(e *env) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "recompute-counts",
		Short: "Rewrite item quantities from their assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := e.repo.RecomputeAllItemCounts(cmd.Context(), orgID)
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d item(s)\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "only this organization")
	return cmd
}

// dialRedis returns nil when Redis is unreachable; the sweep is
// idempotent and runs without the lease.
func dialRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, sweeping without lease", "addr", cfg.RedisAddr, "err", err)
		rdb.Close()
		return nil
	}
	return rdb
}
