/*
 * @module service/init
 * @description 服务初始化，装配运行存储、数据源、缓存、分布式锁、事件发布、挖掘服务和调度器
 * @architecture Layered - service layer composition root
 * @stateFlow config -> database + migrations -> provider -> cache/lock/limiter (Redis or local) -> publishers -> mining service -> scheduler, retention
 * @rules Redis, Kafka and MQTT are optional; a disabled or unreachable optional dependency degrades instead of failing startup
 * @dependencies gorm.io/gorm, github.com/go-redis/redis/v8
 * @refs main.go, api/routes.go
 */

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/hanamichi-me/DW-traffic/service/cache"
	"github.com/hanamichi-me/DW-traffic/service/cleanup"
	"github.com/hanamichi-me/DW-traffic/service/config"
	"github.com/hanamichi-me/DW-traffic/service/database"
	"github.com/hanamichi-me/DW-traffic/service/distributed_lock"
	"github.com/hanamichi-me/DW-traffic/service/mining"
	"github.com/hanamichi-me/DW-traffic/service/notify"
	"github.com/hanamichi-me/DW-traffic/service/rate_limiter"
	"github.com/hanamichi-me/DW-traffic/service/records"
	"github.com/hanamichi-me/DW-traffic/service/repository"
	"github.com/hanamichi-me/DW-traffic/service/scheduler"
	"github.com/hanamichi-me/DW-traffic/service/scripting"
)

var (
	Config                   *config.Config
	DB                       *gorm.DB
	RedisClient              *redis.Client
	GlobalRunRepository      *repository.RunRepository
	GlobalScheduleRepository *repository.ScheduleRepository
	GlobalScriptCompiler     *scripting.Compiler
	GlobalMiningService      *mining.Service
	GlobalSchedulerService   *scheduler.SchedulerService
	GlobalRetentionService   *cleanup.RunRetentionService
	GlobalRateLimiter        rate_limiter.Limiter

	publisher notify.Publisher = notify.Nop{}
)

// Init 根据配置初始化全局服务，启用时启动调度器
func Init(cfg *config.Config) error {
	Config = cfg
	var err error
	DB, err = database.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(DB); err != nil {
		return err
	}

	provider, err := newProvider(cfg.Records, DB)
	if err != nil {
		return err
	}

	resultCache := cache.ResultCache(cache.NopResultCache{})
	var lock distributed_lock.DistributedLock = distributed_lock.NewLocalLock()
	var limiter rate_limiter.Limiter = rate_limiter.NewLocalRateLimiter()
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		RedisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		cancel()
		if err != nil {
			slog.Warn("redis unavailable, using in-process cache and lock", "addr", cfg.Redis.Addr(), "error", err)
		} else {
			resultCache = cache.NewRedisResultCache(RedisClient, cfg.Redis.ResultTTL)
			lock = distributed_lock.NewRedisLock(RedisClient, "arm")
			limiter = rate_limiter.NewRedisRateLimiter(RedisClient, "arm")
		}
	}

	publisher = newPublisher(cfg)

	GlobalRunRepository = repository.NewRunRepository(DB)
	GlobalScheduleRepository = repository.NewScheduleRepository(DB)
	GlobalScriptCompiler = scripting.NewCompiler(scripting.WithTimeout(cfg.Mining.ScriptTimeout))
	GlobalMiningService = mining.NewService(GlobalRunRepository, provider, cfg.Records.Source, cfg.Mining,
		mining.WithCache(resultCache),
		mining.WithPublisher(publisher),
		mining.WithScripts(GlobalScriptCompiler),
	)
	GlobalSchedulerService = scheduler.NewSchedulerService(GlobalScheduleRepository, GlobalMiningService, lock, cfg.Scheduler.LockTTL)

	if cfg.RateLimit.Enabled {
		GlobalRateLimiter = limiter
	}

	if cfg.Scheduler.Enabled {
		if err := GlobalSchedulerService.Start(); err != nil {
			return err
		}
	}
	if cfg.Retention.Enabled {
		GlobalRetentionService = cleanup.NewRunRetentionService(GlobalRunRepository, cfg.Retention.Days, cfg.Retention.Cron)
		if err := GlobalRetentionService.Start(); err != nil {
			return err
		}
	}
	slog.Info("services initialised",
		"records", cfg.Records.Source, "redis", RedisClient != nil,
		"kafka", cfg.Kafka.Enabled, "mqtt", cfg.MQTT.Enabled, "scheduler", cfg.Scheduler.Enabled,
		"retention_days", cfg.Retention.Days, "rate_limit", cfg.RateLimit.Enabled)
	return nil
}

func newProvider(cfg config.RecordsConfig, db *gorm.DB) (records.Provider, error) {
	var cleanser *records.Cleanser
	if cfg.Cleanse {
		cleanser = records.DefaultCleanser()
	}
	switch cfg.Source {
	case "csv":
		return records.NewCSVProvider(cfg.CSVDir, records.WithCharset(cfg.CSVCharset), records.WithCSVCleanser(cleanser))
	case "postgres":
		return records.NewPostgresProvider(db, records.WithSchema(cfg.Schema), records.WithCleanser(cleanser)), nil
	default:
		return nil, fmt.Errorf("service: unknown records source %q", cfg.Source)
	}
}

func newPublisher(cfg *config.Config) notify.Publisher {
	var pubs notify.Multi
	if cfg.Kafka.Enabled {
		pubs = append(pubs, notify.NewKafkaPublisher(cfg.Kafka.BrokerList(), cfg.Kafka.Topic))
	}
	if cfg.MQTT.Enabled {
		p, err := notify.NewMQTTPublisher(notify.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
		})
		if err != nil {
			slog.Warn("mqtt events disabled", "error", err)
		} else {
			pubs = append(pubs, p)
		}
	}
	if len(pubs) == 0 {
		return notify.Nop{}
	}
	return pubs
}

// Ping checks the run store.
func Ping(ctx context.Context) error {
	if DB == nil {
		return errors.New("service: database not initialised")
	}
	return database.Ping(ctx, DB)
}

// Shutdown stops the scheduler and releases connections.
func Shutdown() {
	if GlobalSchedulerService != nil {
		GlobalSchedulerService.Stop()
	}
	if GlobalRetentionService != nil {
		GlobalRetentionService.Stop()
	}
	if err := publisher.Close(); err != nil {
		slog.Error("closing event publishers", "error", err)
	}
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			slog.Error("closing redis", "error", err)
		}
	}
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
