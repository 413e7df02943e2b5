/**
 * @module SchedulerService
 * @description 定时调度服务，按cron表达式执行已保存的扫描计划
 * @architecture Cron scheduler with a distributed lock around every tick
 * @stateFlow Start -> load enabled schedules -> cron tick -> lock -> RunSweep -> RecordRun -> unlock
 * @rules Cron expressions carry a seconds field; one instance runs a given tick; a tick re-reads its schedule so edits apply without reload
 * @dependencies github.com/robfig/cron/v3, service/distributed_lock, service/repository
 * @refs ../models/mining.go, ../mining/service.go
 */

package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hanamichi-me/DW-traffic/service/distributed_lock"
	"github.com/hanamichi-me/DW-traffic/service/mining"
	"github.com/hanamichi-me/DW-traffic/service/models"
	"github.com/hanamichi-me/DW-traffic/service/repository"
	"github.com/hanamichi-me/DW-traffic/service/sweep"
)

// SweepRunner executes one sweep.
type SweepRunner interface {
	RunSweep(ctx context.Context, plan sweep.Plan, scheduleID *string) (*mining.Outcome, error)
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule checks the cron expression and decodes the plan; an empty
// plan document means the default plan.
func ParseSchedule(cronExpression, planYAML string) (sweep.Plan, error) {
	if _, err := cronParser.Parse(cronExpression); err != nil {
		return sweep.Plan{}, fmt.Errorf("scheduler: cron expression %q: %w", cronExpression, err)
	}
	plan := sweep.DefaultPlan()
	if planYAML != "" {
		var err error
		if plan, err = sweep.ParsePlan(bytes.NewBufferString(planYAML)); err != nil {
			return sweep.Plan{}, err
		}
	}
	if err := plan.Validate(); err != nil {
		return sweep.Plan{}, err
	}
	return plan, nil
}

// SchedulerService 定时调度服务
type SchedulerService struct {
	schedules *repository.ScheduleRepository
	runner    SweepRunner
	locks     *distributed_lock.LockExecutor
	lockTTL   time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // schedule id -> cron entry
	running sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSchedulerService creates a stopped scheduler.
func NewSchedulerService(schedules *repository.ScheduleRepository, runner SweepRunner, lock distributed_lock.DistributedLock, lockTTL time.Duration) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &SchedulerService{
		schedules: schedules,
		runner:    runner,
		locks:     distributed_lock.NewLockExecutor(lock),
		lockTTL:   lockTTL,
		cron:      cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cronLogger()))),
		entries:   make(map[string]cron.EntryID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// cronLogger routes cron's own messages, recovered job panics included, to slog.
func cronLogger() cron.Logger {
	return cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
}

// Start registers every enabled schedule and starts the cron loop.
func (s *SchedulerService) Start() error {
	slog.Info("starting sweep scheduler")
	list, err := s.schedules.List(s.ctx, true)
	if err != nil {
		return fmt.Errorf("scheduler: load schedules: %w", err)
	}
	for i := range list {
		if err := s.Add(&list[i]); err != nil {
			slog.Error("schedule not registered", "schedule_id", list[i].ID, "name", list[i].Name, "error", err)
		}
	}
	s.cron.Start()
	slog.Info("sweep scheduler started", "schedules", len(s.entries))
	return nil
}

// Stop 停止调度并等待正在执行的扫描结束
func (s *SchedulerService) Stop() {
	slog.Info("stopping sweep scheduler")
	<-s.cron.Stop().Done()
	s.running.Wait()
	s.cancel()
	slog.Info("sweep scheduler stopped")
}

// Add registers or replaces a schedule. Disabled schedules are only removed.
func (s *SchedulerService) Add(sw *models.ScheduledSweep) error {
	if _, err := ParseSchedule(sw.CronExpression, sw.PlanYAML); err != nil {
		return err
	}
	s.Remove(sw.ID)
	if !sw.Enabled {
		return nil
	}

	id := sw.ID
	entry, err := s.cron.AddFunc(sw.CronExpression, func() { s.Trigger(id) })
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", sw.Name, err)
	}
	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()
	slog.Info("schedule registered", "schedule_id", id, "name", sw.Name, "cron", sw.CronExpression)
	return nil
}

// Remove unregisters a schedule; unknown ids are ignored.
func (s *SchedulerService) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

// Next reports the next activation of a registered schedule.
func (s *SchedulerService) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(entry)
	if e.Next.IsZero() && e.Schedule != nil {
		// cron loop not started yet
		return e.Schedule.Next(time.Now()), true
	}
	return e.Next, true
}

// Trigger runs one tick of schedule id in the background.
func (s *SchedulerService) Trigger(id string) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("scheduled sweep panicked", "schedule_id", id, "panic", r)
			}
		}()
		if _, err := s.RunNow(s.ctx, id); err != nil {
			slog.Error("scheduled sweep failed", "schedule_id", id, "error", err)
		}
	}()
}

// RunNow runs one tick of schedule id under its lock. It returns nil
// without running when another instance holds the lock.
func (s *SchedulerService) RunNow(ctx context.Context, id string) (*mining.Outcome, error) {
	sw, err := s.schedules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	plan, err := ParseSchedule(sw.CronExpression, sw.PlanYAML)
	if err != nil {
		return nil, err
	}

	var out *mining.Outcome
	ran, err := s.locks.ExecuteWithLock(ctx, "sweep:"+id, s.lockTTL, s.lockTTL/3, func(ctx context.Context) error {
		var runErr error
		out, runErr = s.runner.RunSweep(ctx, plan, &id)
		status := models.RunStatusSuccess
		runID := ""
		if runErr != nil {
			status = models.RunStatusFailed
		}
		if out != nil {
			runID = out.Run.ID
		}
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.schedules.RecordRun(recordCtx, id, runID, status); err != nil {
			slog.Error("schedule outcome not recorded", "schedule_id", id, "error", err)
		}
		return runErr
	})
	if !ran && err == nil {
		slog.Info("schedule tick skipped, held by another instance", "schedule_id", id)
	}
	return out, err
}
