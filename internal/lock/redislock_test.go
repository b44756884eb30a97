package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/lock"
)

func newTestLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerializesHolders(t *testing.T) {
	locker := newTestLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var (
		mu          sync.Mutex
		order       []string
		firstActive = make(chan struct{})
		release     = make(chan struct{})
		done        sync.WaitGroup
	)
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	done.Add(2)
	go func() {
		defer done.Done()
		err := locker.WithLock(ctx, "sweep", 100*time.Millisecond, func(context.Context) error {
			record("first")
			close(firstActive)
			<-release
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstActive
	go func() {
		defer done.Done()
		err := locker.WithLock(ctx, "sweep", 100*time.Millisecond, func(context.Context) error {
			record("second")
			return nil
		})
		require.NoError(t, err)
	}()

	close(release)
	done.Wait()

	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockGivesUpWhenContextCancelled(t *testing.T) {
	locker := newTestLocker(t)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "busy", time.Minute, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "busy", time.Minute, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLockRequiresClient(t *testing.T) {
	err := lock.Locker{}.WithLock(context.Background(), "k", time.Second, func(context.Context) error { return nil })
	require.Error(t, err)
}
