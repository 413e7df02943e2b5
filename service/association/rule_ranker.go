/*
 * @module service/association/rule_ranker
 * @description Consequent shape constraints, threshold filtering, ranking, deduplication and top-K truncation
 * @architecture Domain layer - last stage of the mining pipeline
 * @stateFlow shape -> confidence >= min -> lift >= min -> rank -> dedupe -> truncate
 * @rules Ranking is lift desc, confidence desc, then item labels asc; output order is reproducible;
 *        filtering an already filtered result with the same options returns it unchanged
 * @dependencies errors, fmt, math, sort, strings
 */

package association

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ItemPredicate accepts or rejects a single consequent item. A non-nil error
// means the item could not be decided and fails the run.
type ItemPredicate func(Item) (bool, error)

// ConsequentShape constrains rule consequents.
// The zero value accepts every consequent.
type ConsequentShape struct {
	// ExactlyOne requires a single-item consequent.
	ExactlyOne bool
	// Predicate, when set, must hold for every consequent item.
	Predicate ItemPredicate
}

// AnyConsequent accepts every consequent.
func AnyConsequent() ConsequentShape { return ConsequentShape{} }

// SingleItemWithAttribute accepts one-item consequents on the given attribute,
// e.g. "road_user".
func SingleItemWithAttribute(attribute string) ConsequentShape {
	return ConsequentShape{
		ExactlyOne: true,
		Predicate:  func(it Item) (bool, error) { return it.Attribute() == attribute, nil },
	}
}

// SingleItemWithPrefix accepts one-item consequents starting with prefix,
// e.g. "road_user=".
func SingleItemWithPrefix(prefix string) ConsequentShape {
	return ConsequentShape{
		ExactlyOne: true,
		Predicate:  func(it Item) (bool, error) { return strings.HasPrefix(string(it), prefix), nil },
	}
}

// Matches reports whether consequent satisfies the shape. Predicate failures,
// panics included, come back as *PredicateError.
func (s ConsequentShape) Matches(consequent Itemset) (bool, error) {
	if len(consequent) == 0 {
		return false, nil
	}
	if s.ExactlyOne && len(consequent) != 1 {
		return false, nil
	}
	if s.Predicate == nil {
		return true, nil
	}
	for _, it := range consequent {
		ok, err := s.accepts(it)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s ConsequentShape) accepts(it Item) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PredicateError{Item: it, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	ok, err = s.Predicate(it)
	if err != nil {
		var pe *PredicateError
		if !errors.As(err, &pe) {
			err = &PredicateError{Item: it, Err: err}
		}
	}
	return ok, err
}

// FilterOptions configures FilterRules.
type FilterOptions struct {
	Shape         ConsequentShape
	MinConfidence float64
	MinLift       float64
	TopK          int // 0 means no truncation
}

// Validate checks the thresholds.
func (o FilterOptions) Validate() error {
	if math.IsNaN(o.MinConfidence) || o.MinConfidence < 0 || o.MinConfidence > 1 {
		return invalidParam("min_confidence", o.MinConfidence, "must be in [0, 1]")
	}
	if math.IsNaN(o.MinLift) || o.MinLift < 0 {
		return invalidParam("min_lift", o.MinLift, "must be >= 0")
	}
	if o.TopK < 0 {
		return invalidParam("top_k", o.TopK, "must be >= 1, or 0 for unset")
	}
	return nil
}

// FilterRules applies shape, confidence and lift constraints in that order,
// then ranks, deduplicates and truncates. The input slice is not modified.
func FilterRules(rules []Rule, opts FilterOptions) ([]Rule, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		ok, err := opts.Shape.Matches(r.Consequent)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if r.Confidence < opts.MinConfidence {
			continue
		}
		if r.Lift < opts.MinLift {
			continue
		}
		kept = append(kept, r)
	}
	return Truncate(RankRules(kept), opts.TopK), nil
}

// RankRules returns a sorted, deduplicated copy of rules. Of two rules with the
// same antecedent and consequent only the better ranked one is kept.
func RankRules(rules []Rule) []Rule {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return rankLess(sorted[i], sorted[j]) })

	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, r := range sorted {
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Truncate keeps the first k rules; k <= 0 keeps all.
func Truncate(rules []Rule, k int) []Rule {
	if k <= 0 || k >= len(rules) {
		return rules
	}
	return rules[:k]
}

func rankLess(a, b Rule) bool {
	if a.Lift != b.Lift {
		return a.Lift > b.Lift
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if c := compareItemsets(a.Antecedent, b.Antecedent); c != 0 {
		return c < 0
	}
	if c := compareItemsets(a.Consequent, b.Consequent); c != 0 {
		return c < 0
	}
	return a.Variant < b.Variant
}

func compareItemsets(a, b Itemset) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
