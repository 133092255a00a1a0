package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/redis"
)

type fakeLocker struct {
	mu      sync.Mutex
	keys    []string
	lockErr error
}

func (f *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	err := f.lockErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn()
}

func TestSweeperRunOnce(t *testing.T) {
	t.Run("expires stale claims under the sweep lock", func(t *testing.T) {
		claims := &fakeNominees{expired: 3}
		locker := &fakeLocker{}
		sweeper := NewSweeper(claims, locker, SweeperConfig{ClaimMaxAge: 6 * time.Hour}, testLogger())

		before := time.Now().Add(-6 * time.Hour)
		sweeper.RunOnce(context.Background())
		after := time.Now().Add(-6 * time.Hour)

		require.Equal(t, []string{"reconcile:nominee"}, locker.keys)
		assert.False(t, claims.expireCutoff.Before(before))
		assert.False(t, claims.expireCutoff.After(after))
	})

	t.Run("skips when another instance holds the lock", func(t *testing.T) {
		claims := &fakeNominees{expired: 3}
		locker := &fakeLocker{lockErr: redis.ErrLockNotAcquired}
		sweeper := NewSweeper(claims, locker, SweeperConfig{}, testLogger())

		sweeper.RunOnce(context.Background())

		assert.True(t, claims.expireCutoff.IsZero())
	})

	t.Run("survives a failing expiry query", func(t *testing.T) {
		claims := &fakeNominees{expireErr: errors.New("db down")}
		locker := &fakeLocker{}
		sweeper := NewSweeper(claims, locker, SweeperConfig{}, testLogger())

		sweeper.RunOnce(context.Background())

		assert.Len(t, locker.keys, 1)
	})
}

func TestSweeperLifecycle(t *testing.T) {
	claims := &fakeNominees{}
	locker := &fakeLocker{}
	sweeper := NewSweeper(claims, locker, SweeperConfig{Interval: time.Hour}, testLogger())

	ctx := context.Background()
	require.NoError(t, sweeper.Start(ctx))
	assert.ErrorIs(t, sweeper.Start(ctx), ErrSweeperAlreadyRunning)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, sweeper.Stop(stopCtx))

	// the startup sweep ran once before the first tick
	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Len(t, locker.keys, 1)
}

func TestSweeperConfigDefaults(t *testing.T) {
	sweeper := NewSweeper(&fakeNominees{}, &fakeLocker{}, SweeperConfig{}, testLogger())

	assert.Equal(t, DefaultSweepInterval, sweeper.config.Interval)
	assert.Equal(t, DefaultClaimMaxAge, sweeper.config.ClaimMaxAge)
}
