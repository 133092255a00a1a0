package redis

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getTestClient(t *testing.T) *Client {
	t.Helper()

	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6379
	if raw := os.Getenv("REDIS_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		require.NoError(t, err)
		port = parsed
	}

	zapLogger, _ := zap.NewDevelopment()
	client, err := NewClient(Config{Host: host, Port: port, Password: os.Getenv("REDIS_PASSWORD")}, zapadapter.NewZapEctoLogger(zapLogger, nil))
	require.NoError(t, err, "Failed to connect to test redis")
	return client
}

func TestWithLockContention(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := getTestClient(t)
	defer client.Close()

	locker := NewLocker(client, "fern-test:")
	key := "seq:" + uuid.NewString()

	// every contender on a shared key must get its turn, not fail fast
	const workers = 6
	var mu sync.Mutex
	ran := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), key, 5*time.Second, func() error {
				mu.Lock()
				ran++
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, ran)
}

func TestWithLockBoundedWait(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := getTestClient(t)
	defer client.Close()

	locker := NewLocker(client, "fern-test:")
	key := "held:" + uuid.NewString()

	held, err := locker.Acquire(context.Background(), key, 10*time.Second)
	require.NoError(t, err)
	defer held.Release(context.Background())

	// the wait is bounded by the requested ttl
	start := time.Now()
	err = locker.WithLock(context.Background(), key, 200*time.Millisecond, func() error {
		t.Fatal("must not run while the lock is held elsewhere")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.Less(t, time.Since(start), 2*time.Second)
}
