package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func TestLocker(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		testLocker(t, NewLocal())
	})
	t.Run("redis", func(t *testing.T) {
		addr := os.Getenv("TASKBOARD_TEST_REDIS")
		if addr == "" {
			t.Skip("TASKBOARD_TEST_REDIS not set")
		}
		r, err := NewRedis(context.Background(), RedisOptions{Addr: addr, TTL: 5 * time.Second})
		require.NoError(t, err)
		defer r.Close()
		testLocker(t, r)
	})
}

func testLocker(t *testing.T, l locker) {
	t.Run("exclusive", func(t *testing.T) {
		unlock, err := l.Lock(context.Background(), "board:a")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "board:a")
		assert.Error(t, err)

		unlock()
		unlock() // second call is a no-op

		unlock, err = l.Lock(context.Background(), "board:a")
		require.NoError(t, err)
		unlock()
	})

	t.Run("independent keys", func(t *testing.T) {
		unlockA, err := l.Lock(context.Background(), "board:a")
		require.NoError(t, err)
		defer unlockA()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		unlockB, err := l.Lock(ctx, "board:b")
		require.NoError(t, err)
		unlockB()
	})
}

func TestLocalSerializes(t *testing.T) {
	l := NewLocal()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "board:x")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks, "entries are dropped once nobody holds or waits")
}

func TestLocalCancelledWaiterReleasesEntry(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	unlock()
	assert.Empty(t, l.locks)
}

func TestNone(t *testing.T) {
	var n None
	u1, err := n.Lock(context.Background(), "k")
	require.NoError(t, err)
	u2, err := n.Lock(context.Background(), "k")
	require.NoError(t, err)
	u1()
	u2()
}
