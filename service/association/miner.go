/*
 * @module service/association/miner
 * @description Level-wise (Apriori) frequent itemset miner with anti-monotone pruning
 * @architecture Domain layer - second stage of the mining pipeline
 * @stateFlow L1 counting -> [join -> prune -> ceiling check -> count -> keep]* -> union of levels
 * @rules support >= min_support is inclusive; every subset of a kept itemset is itself kept;
 *        candidate generation fails fast above the candidate ceiling
 * @dependencies golang.org/x/sync/errgroup, log/slog
 * @refs encoder.go, rule_generator.go
 */

package association

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxCandidates bounds the candidates of a single level.
	DefaultMaxCandidates = 1_000_000

	// MaxItemsetSizeLimit is the largest itemset the rule generator will split;
	// an n-item set has 2^n-2 splits.
	MaxItemsetSizeLimit = 20

	countChunk = 256
)

// MinerOptions configures MineFrequentItemsets.
type MinerOptions struct {
	MinSupport float64

	// MaxItemsetSize caps itemset size. Zero means the number of selected
	// attributes (no transaction can hold more items than that).
	MaxItemsetSize int

	// MaxCandidates caps the candidates of one level. Zero means DefaultMaxCandidates.
	MaxCandidates int

	// Workers counts candidate support in parallel within a level. Zero means 1.
	Workers int

	Logger *slog.Logger
}

// ValidateMinSupport checks min_support is in (0, 1].
func ValidateMinSupport(v float64) error {
	if math.IsNaN(v) || v <= 0 || v > 1 {
		return invalidParam("min_support", v, "must be in (0, 1]")
	}
	return nil
}

// Validate checks every option without touching any data.
func (o MinerOptions) Validate() error {
	if err := ValidateMinSupport(o.MinSupport); err != nil {
		return err
	}
	if o.MaxItemsetSize < 0 || o.MaxItemsetSize > MaxItemsetSizeLimit {
		return invalidParam("max_itemset_size", o.MaxItemsetSize,
			fmt.Sprintf("must be in [0, %d]", MaxItemsetSizeLimit))
	}
	if o.MaxCandidates < 0 {
		return invalidParam("max_candidates", o.MaxCandidates, "must be >= 0")
	}
	if o.Workers < 0 {
		return invalidParam("workers", o.Workers, "must be >= 0")
	}
	return nil
}

func (o MinerOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// level holds the frequent itemsets of one size, sorted lexicographically by
// vocabulary index, with their transaction sets.
type level struct {
	sets   [][]int
	tids   []tidset
	counts []int
}

// candidate is a (k+1)-itemset produced by joining cur.sets[left] and cur.sets[right].
type candidate struct {
	items       []int
	left, right int
}

// MineFrequentItemsets returns every itemset whose support is >= MinSupport,
// level by level, each level in lexicographic order.
// An empty encoding yields an empty result.
func MineFrequentItemsets(ctx context.Context, enc *Encoding, opts MinerOptions) ([]FrequentItemset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, &EncodingError{Reason: "nil encoding"}
	}

	result := []FrequentItemset{}
	n := enc.Len()
	if n == 0 || len(enc.vocabulary) == 0 {
		return result, nil
	}

	logger := opts.logger()
	maxSize := enc.distinctAttributes()
	if opts.MaxItemsetSize > 0 && opts.MaxItemsetSize < maxSize {
		maxSize = opts.MaxItemsetSize
	}
	limit := opts.MaxCandidates
	if limit == 0 {
		limit = DefaultMaxCandidates
	}
	workers := opts.Workers
	if workers == 0 {
		workers = 1
	}
	keep := func(count int) bool {
		return float64(count)/float64(n) >= opts.MinSupport
	}

	var cur level
	for id, t := range columnTidsets(enc) {
		if c := t.count(); keep(c) {
			cur.sets = append(cur.sets, []int{id})
			cur.tids = append(cur.tids, t)
			cur.counts = append(cur.counts, c)
		}
	}
	result = appendLevel(result, enc, cur, n)
	logger.Debug("association: level mined", "level", 1, "candidates", len(enc.vocabulary), "frequent", len(cur.sets))

	for size := 2; size <= maxSize && len(cur.sets) > 1; size++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("association: mining cancelled before level %d: %w", size, err)
		}

		cands, err := generateCandidates(enc, cur, size, limit)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			break
		}

		next, err := countCandidates(ctx, cur, cands, workers, keep)
		if err != nil {
			return nil, fmt.Errorf("association: counting level %d: %w", size, err)
		}
		logger.Debug("association: level mined", "level", size, "candidates", len(cands), "frequent", len(next.sets))
		if len(next.sets) == 0 {
			break
		}
		result = appendLevel(result, enc, next, n)
		cur = next
	}

	return result, nil
}

// generateCandidates joins itemsets sharing their first size-2 items and drops
// any candidate with an infrequent (size-1)-subset. Items of one attribute never
// co-occur in a table encoding, so such pairs are not joined at all.
func generateCandidates(enc *Encoding, cur level, size, limit int) ([]candidate, error) {
	prefix := size - 2
	known := make(map[string]struct{}, len(cur.sets))
	for _, s := range cur.sets {
		known[intsKey(s)] = struct{}{}
	}

	var out []candidate
	total := 0
	scratch := make([]int, size-1)
	for i := 0; i < len(cur.sets); i++ {
		a := cur.sets[i]
		for j := i + 1; j < len(cur.sets); j++ {
			b := cur.sets[j]
			if !equalPrefix(a, b, prefix) {
				break
			}
			x, y := a[prefix], b[prefix]
			if enc.singleValued && enc.attrOf[x] == enc.attrOf[y] {
				continue
			}

			items := make([]int, 0, size)
			items = append(items, a...)
			items = append(items, y)
			if !subsetsKnown(items, known, scratch) {
				continue
			}

			total++
			if total <= limit {
				out = append(out, candidate{items: items, left: i, right: j})
			}
		}
	}

	if total > limit {
		return nil, &CandidateExplosionError{Level: size, Candidates: total, Limit: limit}
	}
	return out, nil
}

// subsetsKnown checks the subsets that drop one of the shared prefix items;
// the two remaining subsets are the joined parents themselves.
func subsetsKnown(items []int, known map[string]struct{}, scratch []int) bool {
	for drop := 0; drop < len(items)-2; drop++ {
		scratch = scratch[:0]
		scratch = append(scratch, items[:drop]...)
		scratch = append(scratch, items[drop+1:]...)
		if _, ok := known[intsKey(scratch)]; !ok {
			return false
		}
	}
	return true
}

// countCandidates intersects parent transaction sets. Candidates are split into
// chunks counted independently; the only reduction is the final filter.
func countCandidates(ctx context.Context, cur level, cands []candidate, workers int, keep func(int) bool) (level, error) {
	tids := make([]tidset, len(cands))
	counts := make([]int, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(cands); start += countChunk {
		end := start + countChunk
		if end > len(cands) {
			end = len(cands)
		}
		start := start
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				c := cands[i]
				t := intersect(cur.tids[c.left], cur.tids[c.right])
				counts[i] = t.count()
				if keep(counts[i]) {
					tids[i] = t
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return level{}, err
	}

	var next level
	for i, c := range cands {
		if tids[i] == nil {
			continue
		}
		next.sets = append(next.sets, c.items)
		next.tids = append(next.tids, tids[i])
		next.counts = append(next.counts, counts[i])
	}
	return next, nil
}

func appendLevel(dst []FrequentItemset, enc *Encoding, lv level, n int) []FrequentItemset {
	for i, ids := range lv.sets {
		items := make(Itemset, len(ids))
		for j, id := range ids {
			items[j] = enc.vocabulary[id]
		}
		dst = append(dst, FrequentItemset{
			Items:   items,
			Support: float64(lv.counts[i]) / float64(n),
			Count:   lv.counts[i],
		})
	}
	return dst
}

func equalPrefix(a, b []int, n int) bool {
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intsKey(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	return sb.String()
}
