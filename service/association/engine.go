/*
 * @module service/association/engine
 * @description Mining pipeline for one configuration: encode -> mine -> generate -> filter
 * @architecture Domain layer - synchronous batch computation, no I/O
 * @stateFlow validate -> encode -> mine -> generate -> filter -> RunResult
 * @rules All parameters are validated before the table is read; each stage fully consumes
 *        the previous one; the result is a fresh value owned by the caller
 * @dependencies log/slog, time
 * @refs encoder.go, miner.go, rule_generator.go, rule_ranker.go
 */

package association

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config is the full parameter set of one mining run.
type Config struct {
	Variant        string
	Attributes     []string
	MinSupport     float64
	MinConfidence  float64
	MinLift        float64
	TopK           int
	MaxItemsetSize int
	MaxCandidates  int
	Workers        int
	Shape          ConsequentShape
}

// DefaultConfig mirrors the thresholds the fatality analysis has used so far.
func DefaultConfig() Config {
	return Config{
		MinSupport:    0.02,
		MinConfidence: 0.60,
		MinLift:       1.0,
		TopK:          10,
		MaxCandidates: DefaultMaxCandidates,
		Shape:         SingleItemWithPrefix("road_user="),
	}
}

func (c Config) minerOptions(logger *slog.Logger) MinerOptions {
	return MinerOptions{
		MinSupport:     c.MinSupport,
		MaxItemsetSize: c.MaxItemsetSize,
		MaxCandidates:  c.MaxCandidates,
		Workers:        c.Workers,
		Logger:         logger,
	}
}

func (c Config) filterOptions() FilterOptions {
	return FilterOptions{
		Shape:         c.Shape,
		MinConfidence: c.MinConfidence,
		MinLift:       c.MinLift,
		TopK:          c.TopK,
	}
}

// Validate checks every threshold and bound.
func (c Config) Validate() error {
	if err := c.minerOptions(nil).Validate(); err != nil {
		return err
	}
	return c.filterOptions().Validate()
}

// Engine runs the mining pipeline.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine logging to slog.Default unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one configuration against table.
// An empty table or a run that finds nothing returns an empty result, not an error.
func (e *Engine) Run(ctx context.Context, table Table, cfg Config) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	logger := e.logger.With("variant", cfg.Variant)

	enc, err := Encode(table, cfg.Attributes)
	if err != nil {
		return nil, err
	}

	itemsets, err := MineFrequentItemsets(ctx, enc, cfg.minerOptions(logger))
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("association: run cancelled before rule generation: %w", err)
	}
	generated, err := GenerateRules(itemsets)
	if err != nil {
		return nil, err
	}

	rules, err := FilterRules(generated.Rules, cfg.filterOptions())
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Variant = cfg.Variant
	}

	stats := RunStats{
		Transactions:     enc.Len(),
		VocabularySize:   len(enc.vocabulary),
		FrequentItemsets: len(itemsets),
		CandidateRules:   len(generated.Rules),
		SkippedRules:     generated.Skipped,
		AcceptedRules:    len(rules),
	}
	for _, fi := range itemsets {
		if len(fi.Items) > stats.MaxItemsetSize {
			stats.MaxItemsetSize = len(fi.Items)
		}
	}

	logger.Debug("association: run finished",
		"transactions", stats.Transactions,
		"vocabulary", stats.VocabularySize,
		"frequent", stats.FrequentItemsets,
		"rules", stats.AcceptedRules,
		"elapsed", time.Since(started))

	return &RunResult{
		Variant:  cfg.Variant,
		Rules:    rules,
		Itemsets: itemsets,
		Stats:    stats,
	}, nil
}
