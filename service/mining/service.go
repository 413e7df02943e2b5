/*
 * @module service/mining/service
 * @description Runs single mining configurations and sweeps end to end
 * @architecture Service layer - orchestrates records, engine, repository, cache and events
 * @stateFlow validate -> cache lookup -> load records -> mine -> persist -> cache store -> publish -> metrics
 * @rules Invalid parameters are rejected before a run is recorded or any record is read;
 *        a failed run is always marked failed; event delivery never fails a run
 * @dependencies service/association, service/sweep, service/records, service/repository,
 *               service/cache, service/notify, service/scripting
 * @refs api/controllers/mining_controller.go, service/scheduler/scheduler_service.go
 */

package mining

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hanamichi-me/DW-traffic/service/association"
	"github.com/hanamichi-me/DW-traffic/service/cache"
	"github.com/hanamichi-me/DW-traffic/service/config"
	"github.com/hanamichi-me/DW-traffic/service/models"
	"github.com/hanamichi-me/DW-traffic/service/notify"
	"github.com/hanamichi-me/DW-traffic/service/records"
	"github.com/hanamichi-me/DW-traffic/service/repository"
	"github.com/hanamichi-me/DW-traffic/service/scripting"
	"github.com/hanamichi-me/DW-traffic/service/sweep"
)

// RunRequest is one single-configuration run. Nil thresholds take the
// configured defaults.
type RunRequest struct {
	Label            string   `json:"label" example:"speed_easter_bus"`
	Attributes       []string `json:"attributes" example:"gender,speed_category,road_user"`
	MinSupport       *float64 `json:"min_support,omitempty" example:"0.02"`
	MinConfidence    *float64 `json:"min_confidence,omitempty" example:"0.6"`
	MinLift          *float64 `json:"min_lift,omitempty" example:"1"`
	TopK             *int     `json:"top_k,omitempty" example:"10"`
	MaxItemsetSize   *int     `json:"max_itemset_size,omitempty"`
	TargetPrefix     *string  `json:"target_prefix,omitempty" example:"road_user="`
	TargetAttribute  string   `json:"target_attribute,omitempty"`
	ConsequentScript string   `json:"consequent_script,omitempty"`
	SkipCache        bool     `json:"skip_cache,omitempty"`
}

// Outcome is a finished run together with its ranked rules.
type Outcome struct {
	Run      *models.MiningRun
	Rules    []association.Rule
	Itemsets []association.FrequentItemset // nil for cached and sweep runs
	Cached   bool
}

// Service runs and records mining jobs.
type Service struct {
	runs      *repository.RunRepository
	provider  records.Provider
	source    string // provider name, part of the cache fingerprint
	engine    *association.Engine
	scripts   *scripting.Compiler
	cache     cache.ResultCache
	publisher notify.Publisher
	defaults  config.MiningConfig
	metrics   *Metrics
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the result cache.
func WithCache(c cache.ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPublisher sets where run events go.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithScripts shares a predicate compiler.
func WithScripts(c *scripting.Compiler) Option {
	return func(s *Service) { s.scripts = c }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service reading records from provider, named source.
func NewService(runs *repository.RunRepository, provider records.Provider, source string, defaults config.MiningConfig, opts ...Option) *Service {
	s := &Service{
		runs:      runs,
		provider:  provider,
		source:    source,
		cache:     cache.NopResultCache{},
		publisher: notify.Nop{},
		defaults:  defaults,
		metrics:   NewMetrics(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scripts == nil {
		s.scripts = scripting.NewCompiler()
	}
	s.engine = association.NewEngine(association.WithLogger(s.logger))
	return s
}

func (s *Service) shape(prefix, attribute, script string) (association.ConsequentShape, error) {
	switch {
	case script != "":
		pred, err := s.scripts.Compile(script)
		if err != nil {
			return association.ConsequentShape{}, &association.InvalidParameterError{
				Name: "consequent_script", Value: script, Reason: err.Error(),
			}
		}
		return association.ConsequentShape{ExactlyOne: true, Predicate: pred}, nil
	case attribute != "":
		return association.SingleItemWithAttribute(attribute), nil
	case prefix != "":
		return association.SingleItemWithPrefix(prefix), nil
	default:
		return association.ConsequentShape{ExactlyOne: true}, nil
	}
}

// Config resolves a request against the defaults.
func (s *Service) Config(req RunRequest) (association.Config, error) {
	cfg := s.defaults.EngineConfig()
	cfg.Variant = req.Label
	cfg.Attributes = req.Attributes
	if req.MinSupport != nil {
		cfg.MinSupport = *req.MinSupport
	}
	if req.MinConfidence != nil {
		cfg.MinConfidence = *req.MinConfidence
	}
	if req.MinLift != nil {
		cfg.MinLift = *req.MinLift
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if req.MaxItemsetSize != nil {
		cfg.MaxItemsetSize = *req.MaxItemsetSize
	}
	prefix := s.defaults.TargetPrefix
	if req.TargetPrefix != nil {
		prefix = *req.TargetPrefix
	}
	shape, err := s.shape(prefix, req.TargetAttribute, req.ConsequentScript)
	if err != nil {
		return association.Config{}, err
	}
	cfg.Shape = shape

	if len(cfg.Attributes) == 0 {
		return association.Config{}, &association.InvalidParameterError{
			Name: "attributes", Value: 0, Reason: "at least one attribute is required",
		}
	}
	if err := cfg.Validate(); err != nil {
		return association.Config{}, err
	}
	if err := checkAttributes(cfg.Attributes); err != nil {
		return association.Config{}, err
	}
	return cfg, nil
}

// checkAttributes rejects names outside the warehouse catalogue before any
// run is recorded.
func checkAttributes(names []string) error {
	for _, n := range names {
		if _, ok := records.LookupAttribute(n); !ok {
			return &association.EncodingError{Attribute: n, Reason: "unknown attribute"}
		}
	}
	return nil
}

func requestJSON(req RunRequest, cfg association.Config) models.JSONB {
	j := models.JSONB{
		"label":            cfg.Variant,
		"attributes":       cfg.Attributes,
		"min_support":      cfg.MinSupport,
		"min_confidence":   cfg.MinConfidence,
		"min_lift":         cfg.MinLift,
		"top_k":            cfg.TopK,
		"max_itemset_size": cfg.MaxItemsetSize,
		"max_candidates":   cfg.MaxCandidates,
	}
	switch {
	case req.ConsequentScript != "":
		j["consequent_script"] = req.ConsequentScript
	case req.TargetAttribute != "":
		j["target_attribute"] = req.TargetAttribute
	case req.TargetPrefix != nil:
		j["target_prefix"] = *req.TargetPrefix
	}
	return j
}

// RunOnce mines one configuration.
func (s *Service) RunOnce(ctx context.Context, req RunRequest) (*Outcome, error) {
	cfg, err := s.Config(req)
	if err != nil {
		return nil, err
	}
	if req.TargetPrefix == nil && req.TargetAttribute == "" && req.ConsequentScript == "" {
		p := s.defaults.TargetPrefix
		req.TargetPrefix = &p
	}
	settings := requestJSON(req, cfg)

	fingerprint, err := cache.Fingerprint(s.source, models.RunKindSingle, settings)
	if err != nil {
		return nil, err
	}
	if !req.SkipCache {
		if out, ok := s.fromCache(ctx, fingerprint); ok {
			return out, nil
		}
	}

	run := &models.MiningRun{Kind: models.RunKindSingle, Label: req.Label, Config: settings}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	var result *association.RunResult
	err = s.execute(ctx, run, func(ctx context.Context) ([]association.Rule, interface{}, error) {
		table, err := s.provider.Load(ctx, cfg.Attributes)
		if err != nil {
			return nil, nil, err
		}
		result, err = s.engine.Run(ctx, table, cfg)
		if err != nil {
			return nil, nil, err
		}
		return result.Rules, result.Stats, nil
	})
	if err != nil {
		return nil, err
	}

	s.remember(ctx, fingerprint, run.ID)
	return &Outcome{Run: run, Rules: result.Rules, Itemsets: result.Itemsets}, nil
}

// SweepStats is stored as the statistics of a sweep run.
type SweepStats struct {
	Transactions int                             `json:"transactions"`
	MergedRules  int                             `json:"merged_rules"`
	Variants     map[string]association.RunStats `json:"variants"`
}

// RunSweep mines every variant of plan and stores the merged ranking.
// scheduleID links the run to the schedule that triggered it, if any.
func (s *Service) RunSweep(ctx context.Context, plan sweep.Plan, scheduleID *string) (*Outcome, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := checkAttributes(plan.AllAttributes()); err != nil {
		return nil, err
	}
	shape := plan.Shape()
	if plan.ConsequentScript != "" {
		var err error
		if shape, err = s.shape("", "", plan.ConsequentScript); err != nil {
			return nil, err
		}
	}
	configs := plan.Configs(shape)

	settings, err := models.ToJSONB(plan)
	if err != nil {
		return nil, fmt.Errorf("mining: encode plan: %w", err)
	}
	run := &models.MiningRun{Kind: models.RunKindSweep, Label: plan.Name, ScheduleID: scheduleID, Config: settings}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	parallelism := plan.Parallelism
	if parallelism == 0 {
		parallelism = s.defaults.Parallelism
	}
	agg := sweep.NewAggregator(s.engine, sweep.WithParallelism(parallelism), sweep.WithLogger(s.logger))

	var merged []association.Rule
	err = s.execute(ctx, run, func(ctx context.Context) ([]association.Rule, interface{}, error) {
		table, err := s.provider.Load(ctx, plan.AllAttributes())
		if err != nil {
			return nil, nil, err
		}
		res, err := agg.Run(ctx, table, configs, plan.TopK)
		if err != nil {
			return nil, nil, err
		}
		stats := SweepStats{Transactions: table.Len(), MergedRules: len(res.Rules), Variants: map[string]association.RunStats{}}
		for _, v := range res.Variants {
			stats.Variants[v.Variant] = v.Stats
		}
		merged = res.Rules
		return res.Rules, stats, nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Run: run, Rules: merged}, nil
}

// execute moves run through running to success or failure around mine.
func (s *Service) execute(ctx context.Context, run *models.MiningRun, mine func(context.Context) ([]association.Rule, interface{}, error)) error {
	started := time.Now()
	logger := s.logger.With("run_id", run.ID, "kind", run.Kind, "label", run.Label)

	if err := s.runs.MarkRunning(ctx, run.ID); err != nil {
		return err
	}
	logger.Info("mining run started")

	rules, stats, err := guard(ctx, mine)
	if err == nil {
		err = s.runs.MarkSucceeded(ctx, run.ID, stats, rules)
	}
	elapsed := time.Since(started)

	status := models.RunStatusSuccess
	if err != nil {
		status = models.RunStatusFailed
		// the request context may already be cancelled
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if markErr := s.runs.MarkFailed(failCtx, run.ID, err); markErr != nil {
			logger.Error("could not mark run failed", "error", markErr)
		}
		cancel()
		logger.Error("mining run failed", "error", err, "duration", elapsed)
	} else {
		logger.Info("mining run finished", "rules", len(rules), "duration", elapsed)
	}

	s.metrics.RunsTotal.WithLabelValues(run.Kind, status).Inc()
	s.metrics.RunDuration.WithLabelValues(run.Kind).Observe(elapsed.Seconds())
	if err == nil {
		s.metrics.RulesProduced.WithLabelValues(run.Kind).Observe(float64(len(rules)))
	}

	event := notify.NewRunCompleted(run.ID, run.Kind, run.Label, status, rules, elapsed, err)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	if pubErr := s.publisher.Publish(pubCtx, event); pubErr != nil {
		s.metrics.PublishFailures.Inc()
		logger.Warn("run event not delivered", "error", pubErr)
	}
	cancel()

	if err != nil {
		return fmt.Errorf("mining: run %s: %w", run.ID, err)
	}
	if fresh, getErr := s.runs.Get(ctx, run.ID); getErr == nil {
		*run = *fresh
	}
	return nil
}

// guard runs mine, turning a panic into an error so the run still ends failed.
func guard(ctx context.Context, mine func(context.Context) ([]association.Rule, interface{}, error)) (rules []association.Rule, stats interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			rules, stats, err = nil, nil, fmt.Errorf("mining: run panicked: %v", r)
		}
	}()
	return mine(ctx)
}

func (s *Service) fromCache(ctx context.Context, fingerprint string) (*Outcome, bool) {
	runID, ok, err := s.cache.Lookup(ctx, fingerprint)
	if err != nil {
		s.logger.Warn("result cache lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		s.metrics.CacheMissTotal.Inc()
		return nil, false
	}
	out, err := s.Load(ctx, runID, "", 0)
	if err != nil || out.Run.Status != models.RunStatusSuccess {
		s.logger.Warn("dropping stale cache entry", "run_id", runID, "error", err)
		if invErr := s.cache.Invalidate(ctx, fingerprint); invErr != nil {
			s.logger.Warn("result cache invalidate failed", "error", invErr)
		}
		s.metrics.CacheMissTotal.Inc()
		return nil, false
	}
	s.metrics.CacheHitsTotal.Inc()
	out.Cached = true
	s.logger.Info("mining run served from cache", "run_id", runID)
	return out, true
}

func (s *Service) remember(ctx context.Context, fingerprint, runID string) {
	if err := s.cache.Store(ctx, fingerprint, runID); err != nil {
		s.logger.Warn("result cache store failed", "run_id", runID, "error", err)
	}
}

// Load returns a stored run and its rules. variant and limit narrow the rules.
func (s *Service) Load(ctx context.Context, runID, variant string, limit int) (*Outcome, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	stored, err := s.runs.Rules(ctx, runID, variant, limit)
	if err != nil {
		return nil, err
	}
	rules := make([]association.Rule, len(stored))
	for i, r := range stored {
		rules[i] = r.ToRule()
	}
	return &Outcome{Run: run, Rules: rules}, nil
}

// List pages through stored runs.
func (s *Service) List(ctx context.Context, q repository.ListRunsQuery) ([]models.MiningRun, int64, error) {
	return s.runs.List(ctx, q)
}

// IsNotFound reports whether err means an unknown run.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
