/*
 * @module service/sweep/plan
 * @description Sweep plans: named attribute variants plus the thresholds every variant shares
 * @architecture Domain layer - declarative sweep configuration, loadable from YAML or JSON
 * @stateFlow YAML/JSON document -> Plan (defaults for omitted thresholds) -> Validate -> per-variant engine configs
 * @rules Variant labels are unique and non-empty; each variant mines base attributes plus its own extras,
 *        and an extra repeating a base attribute is rejected; unknown YAML keys are rejected
 * @dependencies gopkg.in/yaml.v3
 * @refs aggregator.go, service/association/engine.go
 */

package sweep

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// Variant is one named combination of optional attributes.
type Variant struct {
	Label      string   `yaml:"label" json:"label" example:"limit_easter_bus"`
	Attributes []string `yaml:"attributes" json:"attributes"`
}

// Plan describes a parameter sweep.
type Plan struct {
	Name           string    `yaml:"name" json:"name" example:"fatality_default"`
	BaseAttributes []string  `yaml:"base_attributes" json:"base_attributes"`
	Variants       []Variant `yaml:"variants" json:"variants"`

	// TargetPrefix restricts consequents to one item starting with it.
	// ConsequentScript, when set, replaces the prefix with a scripted predicate.
	TargetPrefix     string `yaml:"target_prefix" json:"target_prefix" example:"road_user="`
	ConsequentScript string `yaml:"consequent_script,omitempty" json:"consequent_script,omitempty"`

	MinSupport     float64 `yaml:"min_support" json:"min_support" example:"0.02"`
	MinConfidence  float64 `yaml:"min_confidence" json:"min_confidence" example:"0.6"`
	MinLift        float64 `yaml:"min_lift" json:"min_lift" example:"1"`
	VariantTopK    int     `yaml:"variant_top_k" json:"variant_top_k" example:"50"`
	TopK           int     `yaml:"top_k" json:"top_k" example:"50"`
	MaxItemsetSize int     `yaml:"max_itemset_size" json:"max_itemset_size"`
	MaxCandidates  int     `yaml:"max_candidates" json:"max_candidates"`
	Workers        int     `yaml:"workers" json:"workers"`         // counting workers per variant
	Parallelism    int     `yaml:"parallelism" json:"parallelism"` // variants mined concurrently
}

// DefaultBaseAttributes are mined in every default variant.
var DefaultBaseAttributes = []string{
	"gender", "age_group",
	"road_type",
	"time_of_day",
	"crash_type",
	"day_type", "road_user", "state",
}

var (
	speedColumns = []struct{ key, column string }{
		{"limit", "speed_limit"},
		{"category", "speed_category"},
	}
	holidayColumns = []struct{ key, column string }{
		{"easter", "easter_period"},
		{"christmas", "christmas_period"},
	}
	vehicleColumns = []struct{ key, column string }{
		{"bus", "bus_involvement"},
		{"heavy", "heavy_rigid_truck_involvement"},
		{"articulated", "articulated_truck_involvement"},
	}
)

func withDefaults(p Plan) Plan {
	p.TargetPrefix = "road_user="
	p.MinSupport = 0.02
	p.MinConfidence = 0.60
	p.MinLift = 1.0
	p.VariantTopK = 50
	p.TopK = 50
	return p
}

// DefaultPlan is the speed x holiday x vehicle grid, 12 variants labelled
// speed_holiday_vehicle, e.g. "category_christmas_heavy".
func DefaultPlan() Plan {
	p := withDefaults(Plan{Name: "fatality_default"})
	p.BaseAttributes = append([]string(nil), DefaultBaseAttributes...)
	for _, s := range speedColumns {
		for _, h := range holidayColumns {
			for _, v := range vehicleColumns {
				p.Variants = append(p.Variants, Variant{
					Label:      s.key + "_" + h.key + "_" + v.key,
					Attributes: []string{s.column, h.column, v.column},
				})
			}
		}
	}
	return p
}

// ParsePlan decodes a YAML plan. Omitted thresholds keep the default values.
func ParsePlan(r io.Reader) (Plan, error) {
	p := withDefaults(Plan{})
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Plan{}, fmt.Errorf("sweep: empty plan document")
		}
		return Plan{}, fmt.Errorf("sweep: decode plan: %w", err)
	}
	return p, nil
}

// Attributes returns the attributes mined for v: base first, then extras.
func (p Plan) Attributes(v Variant) []string {
	out := make([]string, 0, len(p.BaseAttributes)+len(v.Attributes))
	out = append(out, p.BaseAttributes...)
	return append(out, v.Attributes...)
}

// AllAttributes is the union of every variant's attributes, first-seen order.
func (p Plan) AllAttributes() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	add(p.BaseAttributes)
	for _, v := range p.Variants {
		add(v.Attributes)
	}
	return out
}

// Shape is the consequent constraint implied by TargetPrefix. Callers
// resolving ConsequentScript build their own.
func (p Plan) Shape() association.ConsequentShape {
	if p.TargetPrefix == "" {
		return association.ConsequentShape{ExactlyOne: true}
	}
	return association.SingleItemWithPrefix(p.TargetPrefix)
}

// Configs expands the plan into one engine configuration per variant.
func (p Plan) Configs(shape association.ConsequentShape) []association.Config {
	out := make([]association.Config, len(p.Variants))
	for i, v := range p.Variants {
		out[i] = association.Config{
			Variant:        v.Label,
			Attributes:     p.Attributes(v),
			MinSupport:     p.MinSupport,
			MinConfidence:  p.MinConfidence,
			MinLift:        p.MinLift,
			TopK:           p.VariantTopK,
			MaxItemsetSize: p.MaxItemsetSize,
			MaxCandidates:  p.MaxCandidates,
			Workers:        p.Workers,
			Shape:          shape,
		}
	}
	return out
}

// Validate checks the plan and every variant configuration.
func (p Plan) Validate() error {
	if len(p.Variants) == 0 {
		return &association.InvalidParameterError{Name: "variants", Value: 0, Reason: "plan has no variants"}
	}
	if p.TopK < 0 {
		return &association.InvalidParameterError{Name: "top_k", Value: p.TopK, Reason: "must be >= 1, or 0 for unset"}
	}
	if p.Parallelism < 0 {
		return &association.InvalidParameterError{Name: "parallelism", Value: p.Parallelism, Reason: "must be >= 0"}
	}
	labels := make(map[string]struct{}, len(p.Variants))
	for _, v := range p.Variants {
		if v.Label == "" {
			return &association.InvalidParameterError{Name: "variant.label", Value: "", Reason: "must not be empty"}
		}
		if _, dup := labels[v.Label]; dup {
			return &association.InvalidParameterError{Name: "variant.label", Value: v.Label, Reason: "duplicate label"}
		}
		labels[v.Label] = struct{}{}

		selected := make(map[string]struct{}, len(p.BaseAttributes)+len(v.Attributes))
		for _, a := range p.Attributes(v) {
			if _, dup := selected[a]; dup {
				return &association.InvalidParameterError{
					Name: "variant.attributes", Value: a,
					Reason: fmt.Sprintf("variant %s selects %s twice (base attributes are always included)", v.Label, a),
				}
			}
			selected[a] = struct{}{}
		}
	}
	for _, cfg := range p.Configs(p.Shape()) {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("sweep: variant %s: %w", cfg.Variant, err)
		}
	}
	return nil
}
