package app

import (
	"asset_lending_tool/clock"
	"asset_lending_tool/config"
	"asset_lending_tool/db"
	"asset_lending_tool/lifecycle"
	"asset_lending_tool/notify"
	"asset_lending_tool/sweep"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// 事件流最多保留的条数
const notifyStreamMaxLen = 10_000

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Repo   *db.Repo
	Engine *lifecycle.Engine
	Sweep  *sweep.Runner
	Logger *slog.Logger
	Config config.Config
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	// --- DB ---
	dbConn, err := db.Open(cfg.DBOptions())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(dbConn, logger); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	repo := db.NewRepo(dbConn)
	repo.LockTimeout = cfg.LockTimeout

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	// --- Engine ---
	notifier := notify.Multi{
		notify.Log{Logger: logger},
		notify.Inbox{Repo: repo},
		notify.Redis{Client: rdb, Stream: cfg.NotifyStream, MaxLen: notifyStreamMaxLen},
	}
	engine := lifecycle.New(repo, lifecycle.Config{
		Clock:    clock.Real(),
		Policy:   cfg.Policy(),
		Notifier: notifier,
		Logger:   logger,
	})

	// --- Gin ---
	r := gin.Default()
	useCORS(r, cfg.WebOrigin)
	return &App{
		Router: r, DB: dbConn, RDB: rdb, Repo: repo, Engine: engine, Config: cfg, Logger: logger,
		Sweep: &sweep.Runner{Sweeper: engine, Redis: rdb, TTL: cfg.SweepLeaseTTL, Logger: logger},
	}, nil
}

func MustNew(cfg config.Config, logger *slog.Logger) *App {
	a, err := New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	return a
}

func (a *App) Close() {
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
