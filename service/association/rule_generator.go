/*
 * @module service/association/rule_generator
 * @description Expands frequent itemsets into antecedent -> consequent rules and scores them
 * @architecture Domain layer - third stage of the mining pipeline
 * @stateFlow support table -> every non-empty proper split of each itemset -> metrics -> rules
 * @rules Supports are reused from the frequent itemset table, never recounted;
 *        splits with zero antecedent or consequent support are skipped, not failed
 * @dependencies fmt
 * @refs miner.go, rule_ranker.go
 */

package association

import "fmt"

// GenerateResult is the output of GenerateRules.
type GenerateResult struct {
	Rules   []Rule
	Skipped int // splits dropped because a metric was undefined
}

// GenerateRules enumerates all 2^n-2 splits of every frequent itemset with
// n >= 2 items. Rules come out in itemset order, then split order.
func GenerateRules(itemsets []FrequentItemset) (GenerateResult, error) {
	supports := make(map[string]float64, len(itemsets))
	for _, fi := range itemsets {
		supports[fi.Items.Key()] = fi.Support
	}

	res := GenerateResult{Rules: []Rule{}}
	for _, fi := range itemsets {
		n := len(fi.Items)
		if n < 2 {
			continue
		}
		if n > MaxItemsetSizeLimit {
			return GenerateResult{}, invalidParam("itemset_size", n,
				fmt.Sprintf("itemset %s exceeds %d items", fi.Items, MaxItemsetSizeLimit))
		}

		full := uint32(1)<<uint(n) - 1
		for mask := uint32(1); mask < full; mask++ {
			ante, cons := split(fi.Items, mask)
			r, ok := scoreRule(ante, cons, fi.Support, supports)
			if !ok {
				res.Skipped++
				continue
			}
			res.Rules = append(res.Rules, r)
		}
	}
	return res, nil
}

func split(items Itemset, mask uint32) (Itemset, Itemset) {
	var ante, cons Itemset
	for i, it := range items {
		if mask&(1<<uint(i)) != 0 {
			ante = append(ante, it)
		} else {
			cons = append(cons, it)
		}
	}
	return ante, cons
}

// scoreRule computes the rule metrics; ok is false when the antecedent or
// consequent support is missing or zero.
func scoreRule(ante, cons Itemset, support float64, supports map[string]float64) (Rule, bool) {
	sA, okA := supports[ante.Key()]
	sC, okC := supports[cons.Key()]
	if !okA || !okC || sA == 0 || sC == 0 {
		return Rule{}, false
	}

	confidence := support / sA
	conviction := Unbounded
	if confidence < 1 {
		conviction = (1 - sC) / (1 - confidence)
	}

	return Rule{
		Antecedent: ante,
		Consequent: cons,
		Support:    support,
		Confidence: confidence,
		Lift:       confidence / sC,
		Leverage:   support - sA*sC,
		Conviction: conviction,
	}, true
}
