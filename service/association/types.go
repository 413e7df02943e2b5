/*
 * @module service/association/types
 * @description Core value types of the mining engine: items, itemsets, frequent itemsets and rules
 * @architecture Domain layer - immutable value objects
 * @stateFlow items -> itemsets -> frequent itemsets -> rules -> run result
 * @rules Itemsets are sorted and duplicate free; two itemsets are equal iff their items are equal
 * @dependencies math, sort, strings
 */

package association

import (
	"math"
	"sort"
	"strings"
)

// ItemSeparator joins an attribute name and a value inside an Item.
const ItemSeparator = "="

// Item is an "attribute=value" token.
type Item string

// NewItem builds the token for one attribute and one observed value.
func NewItem(attribute, value string) Item {
	return Item(attribute + ItemSeparator + value)
}

// Attribute returns the part before the first separator, or the whole token
// when the item was not built from an attribute.
func (i Item) Attribute() string {
	if idx := strings.Index(string(i), ItemSeparator); idx >= 0 {
		return string(i)[:idx]
	}
	return string(i)
}

// Value returns the part after the first separator.
func (i Item) Value() string {
	if idx := strings.Index(string(i), ItemSeparator); idx >= 0 {
		return string(i)[idx+len(ItemSeparator):]
	}
	return ""
}

// Itemset is a sorted, duplicate-free set of items.
type Itemset []Item

// NewItemset copies, sorts and deduplicates items.
func NewItemset(items ...Item) Itemset {
	out := make(Itemset, len(items))
	copy(out, items)
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })

	n := 0
	for i, it := range out {
		if i > 0 && it == out[n-1] {
			continue
		}
		out[n] = it
		n++
	}
	return out[:n]
}

// Len returns the number of items.
func (s Itemset) Len() int { return len(s) }

// Contains reports whether item is a member.
func (s Itemset) Contains(item Item) bool {
	idx := sort.Search(len(s), func(i int) bool { return s[i] >= item })
	return idx < len(s) && s[idx] == item
}

// Equal compares two itemsets as sets.
func (s Itemset) Equal(other Itemset) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Key is a canonical string usable as a map key.
func (s Itemset) Key() string {
	parts := make([]string, len(s))
	for i, it := range s {
		parts[i] = string(it)
	}
	return strings.Join(parts, "\x1f")
}

// Strings returns the items as plain strings.
func (s Itemset) Strings() []string {
	out := make([]string, len(s))
	for i, it := range s {
		out[i] = string(it)
	}
	return out
}

// String formats the itemset as "{a, b}".
func (s Itemset) String() string {
	return "{" + strings.Join(s.Strings(), ", ") + "}"
}

// FrequentItemset pairs an itemset with its support.
type FrequentItemset struct {
	Items   Itemset
	Support float64 // fraction of transactions containing Items
	Count   int     // absolute number of supporting transactions
}

// Unbounded is the conviction of a rule whose confidence is exactly 1.
var Unbounded = math.Inf(1)

// IsUnbounded reports whether v is the Unbounded sentinel.
func IsUnbounded(v float64) bool { return math.IsInf(v, 1) }

// Rule is a directed antecedent -> consequent association with its metrics.
type Rule struct {
	Antecedent Itemset
	Consequent Itemset
	Support    float64
	Confidence float64
	Lift       float64
	Leverage   float64
	Conviction float64 // Unbounded when Confidence == 1

	// Variant is the sweep variant label; empty for single runs.
	Variant string
}

// Key identifies the rule by its item sets only, ignoring metrics and variant.
func (r Rule) Key() string {
	return r.Antecedent.Key() + "\x1e" + r.Consequent.Key()
}

// String formats the rule as "{a} => {b}".
func (r Rule) String() string {
	return r.Antecedent.String() + " => " + r.Consequent.String()
}

// RunStats counts what each stage of a run produced.
type RunStats struct {
	Transactions     int `json:"transactions"`
	VocabularySize   int `json:"vocabulary_size"`
	FrequentItemsets int `json:"frequent_itemsets"`
	MaxItemsetSize   int `json:"max_itemset_size"`
	CandidateRules   int `json:"candidate_rules"`
	SkippedRules     int `json:"skipped_rules"` // undefined metrics (zero support)
	AcceptedRules    int `json:"accepted_rules"`
}

// RunResult is the immutable outcome of one configuration.
type RunResult struct {
	Variant  string
	Rules    []Rule
	Itemsets []FrequentItemset
	Stats    RunStats
}
