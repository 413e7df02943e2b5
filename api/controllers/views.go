package controllers

import (
	"math"

	"github.com/hanamichi-me/DW-traffic/service/association"
	"github.com/hanamichi-me/DW-traffic/service/mining"
	"github.com/hanamichi-me/DW-traffic/service/models"
)

// RuleView is the JSON form of a ranked rule. Conviction is null when unbounded.
type RuleView struct {
	Rank        int      `json:"rank" example:"1"`
	Antecedents []string `json:"antecedents" example:"gender=Male,speed_category=High"`
	Consequents []string `json:"consequents" example:"road_user=Driver"`
	Support     float64  `json:"support" example:"0.21"`
	Confidence  float64  `json:"confidence" example:"0.81"`
	Lift        float64  `json:"lift" example:"1.6"`
	Leverage    float64  `json:"leverage" example:"0.08"`
	Conviction  *float64 `json:"conviction" example:"2.5"`
	Variant     string   `json:"variant,omitempty" example:"category_easter_bus"`
}

// ItemsetView is the JSON form of a frequent itemset.
type ItemsetView struct {
	Items   []string `json:"items"`
	Support float64  `json:"support"`
	Count   int      `json:"count"`
}

// RunView is a run with its rules.
type RunView struct {
	Run      *models.MiningRun `json:"run"`
	Cached   bool              `json:"cached"`
	Rules    []RuleView        `json:"rules"`
	Itemsets []ItemsetView     `json:"itemsets,omitempty"`
}

func ruleViews(rules []association.Rule) []RuleView {
	out := make([]RuleView, len(rules))
	for i, r := range rules {
		out[i] = RuleView{
			Rank:        i + 1,
			Antecedents: r.Antecedent.Strings(),
			Consequents: r.Consequent.Strings(),
			Support:     r.Support,
			Confidence:  r.Confidence,
			Lift:        r.Lift,
			Leverage:    r.Leverage,
			Variant:     r.Variant,
		}
		if !association.IsUnbounded(r.Conviction) && !math.IsNaN(r.Conviction) {
			c := r.Conviction
			out[i].Conviction = &c
		}
	}
	return out
}

func runView(out *mining.Outcome, withItemsets bool) RunView {
	v := RunView{Run: out.Run, Cached: out.Cached, Rules: ruleViews(out.Rules)}
	if withItemsets {
		v.Itemsets = make([]ItemsetView, len(out.Itemsets))
		for i, f := range out.Itemsets {
			v.Itemsets[i] = ItemsetView{Items: f.Items.Strings(), Support: f.Support, Count: f.Count}
		}
	}
	return v
}
