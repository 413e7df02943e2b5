/*
 * @module service/distributed_lock/redis_lock
 * @description Redis分布式锁实现，保证多实例环境下同一定时扫描只由一个实例执行
 * @architecture 工具层 - 提供分布式锁能力
 * @stateFlow TryLock -> run sweep (with periodic Refresh) -> Unlock or expiry
 * @rules SET NX with an owner token; only the owner may refresh or release
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/scheduler/scheduler_service.go
 */

package distributed_lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotHeld is returned by Refresh when the lock expired or belongs to another instance.
var ErrNotHeld = errors.New("distributed_lock: lock not held by this instance")

// DistributedLock 分布式锁接口，按key加锁并自动过期
type DistributedLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Refresh(ctx context.Context, key string, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

const (
	unlockScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	refreshScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

// RedisLock Redis分布式锁实现
type RedisLock struct {
	client     *redis.Client
	prefix     string
	instanceID string // owner token: hostname:pid
}

// NewRedisLock creates a lock whose keys are prefix:<key>.
func NewRedisLock(client *redis.Client, prefix string) *RedisLock {
	hostname, _ := os.Hostname()
	return &RedisLock{
		client:     client,
		prefix:     prefix,
		instanceID: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
}

func (r *RedisLock) lockKey(key string) string {
	return r.prefix + ":lock:" + key
}

// TryLock acquires key if nobody holds it.
func (r *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.lockKey(key), r.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("distributed_lock: acquire %s: %w", key, err)
	}
	if ok {
		slog.Debug("lock acquired", "key", key, "ttl", ttl, "instance", r.instanceID)
	}
	return ok, nil
}

// Unlock releases key if this instance holds it.
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	res, err := r.client.Eval(ctx, unlockScript, []string{r.lockKey(key)}, r.instanceID).Int64()
	if err != nil {
		return fmt.Errorf("distributed_lock: release %s: %w", key, err)
	}
	if res == 0 {
		slog.Warn("lock already expired or taken over", "key", key, "instance", r.instanceID)
	}
	return nil
}

// Refresh extends the expiry of a held lock.
func (r *RedisLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	res, err := r.client.Eval(ctx, refreshScript, []string{r.lockKey(key)}, r.instanceID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("distributed_lock: refresh %s: %w", key, err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

// IsLocked reports whether anybody holds key.
func (r *RedisLock) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.lockKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("distributed_lock: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// LocalLock is an in-process DistributedLock for single-instance deployments
// without Redis.
type LocalLock struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewLocalLock creates an empty LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{expires: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLock) held(key string) bool {
	exp, ok := l.expires[key]
	return ok && l.now().Before(exp)
}

func (l *LocalLock) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held(key) {
		return false, nil
	}
	l.expires[key] = l.now().Add(ttl)
	return true, nil
}

func (l *LocalLock) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, key)
	return nil
}

func (l *LocalLock) Refresh(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held(key) {
		return ErrNotHeld
	}
	l.expires[key] = l.now().Add(ttl)
	return nil
}

func (l *LocalLock) IsLocked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held(key), nil
}

// LockExecutor runs functions under a lock.
type LockExecutor struct {
	lock DistributedLock
}

// NewLockExecutor wraps lock.
func NewLockExecutor(lock DistributedLock) *LockExecutor {
	return &LockExecutor{lock: lock}
}

// ExecuteWithLock runs fn while holding key, refreshing the lock every
// refreshInterval (no refresh when refreshInterval <= 0). It reports false
// without calling fn when another holder has the lock.
func (e *LockExecutor) ExecuteWithLock(ctx context.Context, key string, ttl, refreshInterval time.Duration, fn func(context.Context) error) (bool, error) {
	locked, err := e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if !locked {
		slog.Debug("lock held elsewhere, skipping", "key", key)
		return false, nil
	}

	// unlock must not depend on the caller's context surviving
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.lock.Unlock(unlockCtx, key); err != nil {
			slog.Error("lock release failed", "key", key, "error", err)
		}
	}()

	if refreshInterval > 0 {
		refreshCtx, stop := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(refreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-refreshCtx.Done():
					return
				case <-ticker.C:
					if err := e.lock.Refresh(refreshCtx, key, ttl); err != nil && refreshCtx.Err() == nil {
						slog.Error("lock refresh failed", "key", key, "error", err)
					}
				}
			}
		}()
		defer func() {
			stop()
			wg.Wait()
		}()
	}

	return true, fn(ctx)
}
