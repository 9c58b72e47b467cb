// Package sweep triggers the overdue sweep. A Redis lease keeps two
// processes from sweeping the same date at once; the sweep itself is
// idempotent, so a missing Redis only costs duplicate work.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultLeaseTTL = 5 * time.Minute

var ErrBusy = errors.New("overdue sweep already running")

type Sweeper interface {
	SweepOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// 只删除自己持有的租约
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Runner struct {
	Sweeper Sweeper
	Redis   *redis.Client // nil: no lease
	TTL     time.Duration
	Logger  *slog.Logger
}

func LeaseKey(asOf time.Time) string {
	return "lending:sweep:" + asOf.Format(time.DateOnly)
}

// Run sweeps for asOf under the lease. It returns ErrBusy when another
// holder has it.
func (r *Runner) Run(ctx context.Context, asOf time.Time) (int, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if r.Redis != nil {
		ttl := r.TTL
		if ttl <= 0 {
			ttl = DefaultLeaseTTL
		}
		key, token := LeaseKey(asOf), uuid.NewString()
		ok, err := r.Redis.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil:
			logger.WarnContext(ctx, "sweep lease unavailable, sweeping without it", "err", err)
		case !ok:
			return 0, ErrBusy
		default:
			defer func() {
				if err := release.Run(context.WithoutCancel(ctx), r.Redis, []string{key}, token).Err(); err != nil {
					logger.WarnContext(ctx, "sweep lease release failed", "key", key, "err", err)
				}
			}()
		}
	}
	return r.Sweeper.SweepOverdue(ctx, asOf)
}

// Every runs a sweep for today() now and then every interval until ctx
// is done.
func (r *Runner) Every(ctx context.Context, interval time.Duration, today func() time.Time) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		asOf := today()
		n, err := r.Run(ctx, asOf)
		switch {
		case errors.Is(err, ErrBusy):
			logger.DebugContext(ctx, "overdue sweep skipped, lease held elsewhere")
		case err != nil:
			logger.ErrorContext(ctx, "overdue sweep", "as_of", asOf.Format(time.DateOnly), "updated", n, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
