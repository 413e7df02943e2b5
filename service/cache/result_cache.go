/*
 * @module service/cache/result_cache
 * @description Maps a run fingerprint (data source + full configuration) to the id of a finished run
 * @architecture Infrastructure layer - key/value cache
 * @stateFlow Fingerprint -> Lookup (hit: reuse stored run) | miss -> run -> Store
 * @rules Only successful runs are stored; entries expire after the configured TTL so warehouse reloads are picked up
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/mining/service.go
 */

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "arm:result:"

// ResultCache remembers which run already answered a fingerprint.
type ResultCache interface {
	Lookup(ctx context.Context, fingerprint string) (runID string, ok bool, err error)
	Store(ctx context.Context, fingerprint, runID string) error
	Invalidate(ctx context.Context, fingerprint string) error
}

// Fingerprint hashes the JSON form of parts. Map keys are sorted by
// encoding/json, so equal inputs always give equal fingerprints.
func Fingerprint(parts ...interface{}) (string, error) {
	b, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("cache: fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// RedisResultCache stores fingerprints as plain Redis strings.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultCache creates a cache over client. ttl <= 0 keeps entries forever.
func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{client: client, ttl: ttl}
}

func (c *RedisResultCache) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	runID, err := c.client.Get(ctx, keyPrefix+fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: lookup: %w", err)
	}
	return runID, true, nil
}

func (c *RedisResultCache) Store(ctx context.Context, fingerprint, runID string) error {
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, keyPrefix+fingerprint, runID, ttl).Err(); err != nil {
		return fmt.Errorf("cache: store: %w", err)
	}
	return nil
}

func (c *RedisResultCache) Invalidate(ctx context.Context, fingerprint string) error {
	if err := c.client.Del(ctx, keyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

// NopResultCache never hits. Used when Redis is disabled.
type NopResultCache struct{}

func (NopResultCache) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }
func (NopResultCache) Store(context.Context, string, string) error          { return nil }
func (NopResultCache) Invalidate(context.Context, string) error             { return nil }
