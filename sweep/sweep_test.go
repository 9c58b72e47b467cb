package sweep

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Time
	hold  chan struct{}
}

func (f *fakeSweeper) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, asOf)
	f.mu.Unlock()
	if f.hold != nil {
		<-f.hold
	}
	return 3, nil
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

var asOf = time.Date(2024, 6, 6, 0, 0, 0, 0, time.UTC)

func TestRunReleasesLease(t *testing.T) {
	mr, rdb := newRedis(t)
	s := &fakeSweeper{}
	r := &Runner{Sweeper: s, Redis: rdb, Logger: slog.New(slog.DiscardHandler)}

	n, err := r.Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, mr.Exists(LeaseKey(asOf)))

	_, err = r.Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, s.count())
}

func TestRunBusyWhileLeaseHeld(t *testing.T) {
	mr, rdb := newRedis(t)
	s := &fakeSweeper{hold: make(chan struct{})}
	r := &Runner{Sweeper: s, Redis: rdb, TTL: time.Minute, Logger: slog.New(slog.DiscardHandler)}

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), asOf)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)

	_, err := r.Run(context.Background(), asOf)
	assert.ErrorIs(t, err, ErrBusy)

	// A different date has its own lease.
	other := &Runner{Sweeper: &fakeSweeper{}, Redis: rdb}
	_, err = other.Run(context.Background(), asOf.AddDate(0, 0, 1))
	require.NoError(t, err)

	close(s.hold)
	require.NoError(t, <-done)
	assert.False(t, mr.Exists(LeaseKey(asOf)))
}

func TestRunDoesNotReleaseForeignLease(t *testing.T) {
	mr, rdb := newRedis(t)
	s := &fakeSweeper{}
	r := &Runner{Sweeper: s, Redis: rdb, TTL: time.Minute, Logger: slog.New(slog.DiscardHandler)}

	// Our lease expires mid-sweep and someone else takes the key.
	s.hold = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), asOf)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set(LeaseKey(asOf), "someone-else"))
	close(s.hold)
	require.NoError(t, <-done)

	got, err := mr.Get(LeaseKey(asOf))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRunWithoutRedis(t *testing.T) {
	s := &fakeSweeper{}
	n, err := (&Runner{Sweeper: s}).Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunSweepsWhenRedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	s := &fakeSweeper{}
	r := &Runner{Sweeper: s, Redis: rdb, Logger: slog.New(slog.DiscardHandler)}

	_, err := r.Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, s.count())
}

func TestEveryStopsOnCancel(t *testing.T) {
	s := &fakeSweeper{}
	r := &Runner{Sweeper: s, Logger: slog.New(slog.DiscardHandler)}
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		r.Every(ctx, 10*time.Millisecond, func() time.Time { return asOf })
		close(stopped)
	}()
	require.Eventually(t, func() bool { return s.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Every did not return after cancel")
	}
}
