/*
 * @module service/cleanup/run_retention_service
 * @description 运行结果保留清理服务，定期删除超过保留期的已完成运行及其规则
 * @architecture 分层架构 - 服务层
 * @stateFlow cron tick -> cutoff = now - retention -> RunRepository.DeleteFinishedBefore -> log
 * @rules Pending and running runs are never removed; a failed cleanup is logged and retried on the next tick
 * @dependencies github.com/robfig/cron/v3, service/repository
 * @refs service/repository/run_repository.go
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RunPurger deletes finished runs created before a cutoff.
type RunPurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunRetentionService 运行结果保留清理服务，按cron计划删除过期运行
type RunRetentionService struct {
	runs      RunPurger
	retention time.Duration
	spec      string
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	now       func() time.Time
}

// NewRunRetentionService keeps runs for retentionDays and purges on spec
// (a cron expression with seconds, e.g. "0 30 3 * * *").
func NewRunRetentionService(runs RunPurger, retentionDays int, spec string) *RunRetentionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunRetentionService{
		runs:      runs,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		spec:      spec,
		cron: cron.New(cron.WithSeconds(), cron.WithChain(
			cron.Recover(cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))),
		)),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// Cleanup purges once.
func (s *RunRetentionService) Cleanup(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.runs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("expired mining runs removed",
		"deleted", deleted,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds())
	return deleted, nil
}

// Start registers the purge and starts the cron loop.
func (s *RunRetentionService) Start() error {
	if s.started {
		return fmt.Errorf("cleanup: retention already started")
	}
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.Cleanup(s.ctx); err != nil {
			slog.Error("run retention cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cleanup: schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.started = true
	slog.Info("run retention started", "schedule", s.spec, "retention", s.retention)
	return nil
}

// Stop halts the cron loop and waits for a running purge.
func (s *RunRetentionService) Stop() {
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.cancel()
	s.started = false
	slog.Info("run retention stopped")
}
