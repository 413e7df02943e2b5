/*
 * @module service/cache/redis
 * @description Redis客户端初始化，供结果缓存和扫描锁共用
 * @architecture Infrastructure layer - connection factory
 * @stateFlow config -> client -> ping -> shared by cache and distributed_lock
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/config/config.go, service/distributed_lock/redis_lock.go
 */

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hanamichi-me/DW-traffic/service/config"
)

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connect redis %s: %w", cfg.Addr(), err)
	}

	slog.Info("redis connected", "addr", cfg.Addr(), "db", cfg.DB)
	return client, nil
}
