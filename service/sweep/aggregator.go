/*
 * @module service/sweep/aggregator
 * @description Runs the mining pipeline once per variant and folds the results into one ranked rule list
 * @architecture Domain layer - orchestration around service/association
 * @stateFlow configs -> bounded parallel engine runs -> per-variant RunResults -> concat -> rank/dedupe/truncate
 * @rules Variants share no mutable state; each run writes only its own slot; the merge is a pure fold
 *        in variant order, so the output does not depend on parallelism
 * @dependencies golang.org/x/sync/errgroup, log/slog
 * @refs plan.go, service/association/rule_ranker.go
 */

package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// Result holds every variant result and the merged ranking.
type Result struct {
	Variants []*association.RunResult
	Rules    []association.Rule
}

// Aggregator runs sweeps.
type Aggregator struct {
	engine      *association.Engine
	parallelism int
	logger      *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithParallelism bounds how many variants are mined at once. Values below
// one mean sequential.
func WithParallelism(n int) Option {
	return func(a *Aggregator) { a.parallelism = n }
}

// WithLogger sets the aggregator logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator around engine.
func NewAggregator(engine *association.Engine, opts ...Option) *Aggregator {
	a := &Aggregator{engine: engine, parallelism: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.parallelism < 1 {
		a.parallelism = 1
	}
	return a
}

// Run mines every config against table and merges the rules, keeping topK
// overall (0 keeps all). The first failing variant cancels the others.
func (a *Aggregator) Run(ctx context.Context, table association.Table, configs []association.Config, topK int) (*Result, error) {
	if topK < 0 {
		return nil, &association.InvalidParameterError{Name: "top_k", Value: topK, Reason: "must be >= 1, or 0 for unset"}
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("sweep: variant %s: %w", cfg.Variant, err)
		}
	}

	results := make([]*association.RunResult, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			res, err := a.engine.Run(gctx, table, cfg)
			if err != nil {
				return fmt.Errorf("sweep: variant %s: %w", cfg.Variant, err)
			}
			a.logger.Info("sweep: variant mined", "variant", cfg.Variant, "rules", len(res.Rules),
				"frequent", res.Stats.FrequentItemsets)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{Variants: results, Rules: Merge(results, topK)}, nil
}

// Merge concatenates variant rules in order and re-applies ranking,
// deduplication and truncation globally.
func Merge(results []*association.RunResult, topK int) []association.Rule {
	var all []association.Rule
	for _, r := range results {
		if r != nil {
			all = append(all, r.Rules...)
		}
	}
	return association.Truncate(association.RankRules(all), topK)
}
