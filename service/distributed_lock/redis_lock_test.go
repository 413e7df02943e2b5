package distributed_lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamichi-me/DW-traffic/testutil"
)

func exerciseLock(t *testing.T, lock DistributedLock) {
	ctx := context.Background()

	ok, err := lock.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire fails while held")

	locked, err := lock.IsLocked(ctx, "sweep")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, lock.Refresh(ctx, "sweep", time.Minute))
	require.NoError(t, lock.Unlock(ctx, "sweep"))

	locked, err = lock.IsLocked(ctx, "sweep")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.ErrorIs(t, lock.Refresh(ctx, "sweep", time.Minute), ErrNotHeld)
}

func TestLocalLock(t *testing.T) {
	exerciseLock(t, NewLocalLock())
}

func TestLocalLock_Expiry(t *testing.T) {
	lock := NewLocalLock()
	now := time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := lock.TryLock(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = lock.TryLock(ctx, "k", time.Second)
	assert.True(t, ok, "expired lock can be taken again")
}

func TestRedisLock(t *testing.T) {
	client := testutil.NewTestRedis(t)
	exerciseLock(t, NewRedisLock(client, "arm_test"))
}

func TestRedisLock_OtherOwnerCannotRelease(t *testing.T) {
	client := testutil.NewTestRedis(t)
	ctx := context.Background()
	a := NewRedisLock(client, "arm_test")
	b := NewRedisLock(client, "arm_test")
	b.instanceID = "other:1"

	ok, err := a.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Unlock(ctx, "k"))
	locked, err := a.IsLocked(ctx, "k")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.ErrorIs(t, b.Refresh(ctx, "k", time.Minute), ErrNotHeld)
}

func TestLockExecutor(t *testing.T) {
	lock := NewLocalLock()
	exec := NewLockExecutor(lock)
	ctx := context.Background()

	var calls int32
	ran, err := exec.ExecuteWithLock(ctx, "k", time.Minute, 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		held, _ := lock.IsLocked(ctx, "k")
		assert.True(t, held)
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.EqualValues(t, 1, calls)

	held, _ := lock.IsLocked(ctx, "k")
	assert.False(t, held, "released after fn returns")

	boom := errors.New("boom")
	ran, err = exec.ExecuteWithLock(ctx, "k", time.Minute, 0, func(context.Context) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)

	ok, _ := lock.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)
	ran, err = exec.ExecuteWithLock(ctx, "k", time.Minute, 0, func(context.Context) error {
		t.Fatal("must not run while another holder has the lock")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)
}
