package sweep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

func TestDefaultPlan(t *testing.T) {
	p := DefaultPlan()
	require.NoError(t, p.Validate())

	require.Len(t, p.Variants, 12)
	assert.Equal(t, "limit_easter_bus", p.Variants[0].Label)
	assert.Equal(t, "category_christmas_articulated", p.Variants[11].Label)
	assert.Equal(t, []string{"speed_limit", "easter_period", "bus_involvement"}, p.Variants[0].Attributes)

	assert.Equal(t, 0.02, p.MinSupport)
	assert.Equal(t, 0.60, p.MinConfidence)
	assert.Equal(t, 1.0, p.MinLift)
	assert.Equal(t, 50, p.VariantTopK)
	assert.Equal(t, 50, p.TopK)

	attrs := p.Attributes(p.Variants[4])
	assert.Equal(t, DefaultBaseAttributes, attrs[:len(DefaultBaseAttributes)])
	assert.Equal(t, []string{"speed_limit", "christmas_period", "heavy_rigid_truck_involvement"}, attrs[len(DefaultBaseAttributes):])
	assert.Len(t, p.AllAttributes(), len(DefaultBaseAttributes)+7)

	configs := p.Configs(p.Shape())
	require.Len(t, configs, 12)
	assert.Equal(t, 50, configs[3].TopK)
	ok, err := configs[3].Shape.Matches(association.Itemset{"road_user=Driver"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = configs[3].Shape.Matches(association.Itemset{"gender=Male"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParsePlan(t *testing.T) {
	doc := `
name: holidays
base_attributes: [gender, road_user]
variants:
  - label: easter
    attributes: [easter_period]
  - label: christmas
    attributes: [christmas_period]
min_support: 0.05
top_k: 20
parallelism: 2
`
	p, err := ParsePlan(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, "holidays", p.Name)
	assert.Len(t, p.Variants, 2)
	assert.Equal(t, 0.05, p.MinSupport)
	assert.Equal(t, 0.60, p.MinConfidence, "omitted thresholds keep defaults")
	assert.Equal(t, "road_user=", p.TargetPrefix)
	assert.Equal(t, 20, p.TopK)
	assert.Equal(t, 2, p.Parallelism)
}

func TestParsePlan_Errors(t *testing.T) {
	_, err := ParsePlan(strings.NewReader("min_suport: 0.1\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = ParsePlan(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParsePlan(strings.NewReader("variants: nope\n"))
	assert.Error(t, err)
}

func TestPlan_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Plan)
	}{
		{"no variants", func(p *Plan) { p.Variants = nil }},
		{"empty label", func(p *Plan) { p.Variants[0].Label = "" }},
		{"duplicate label", func(p *Plan) { p.Variants[1].Label = p.Variants[0].Label }},
		{"support out of range", func(p *Plan) { p.MinSupport = 0 }},
		{"confidence out of range", func(p *Plan) { p.MinConfidence = 1.5 }},
		{"negative top k", func(p *Plan) { p.TopK = -1 }},
		{"negative parallelism", func(p *Plan) { p.Parallelism = -2 }},
		{"extra repeats base attribute", func(p *Plan) { p.Variants[2].Attributes = append(p.Variants[2].Attributes, "road_user") }},
		{"extra listed twice", func(p *Plan) { p.Variants[0].Attributes = []string{"speed_limit", "speed_limit"} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPlan()
			tc.mutate(&p)
			assert.ErrorIs(t, p.Validate(), association.ErrInvalidParameter)
		})
	}
}

func TestPlan_ValidateNamesOverlappingAttribute(t *testing.T) {
	p := DefaultPlan()
	p.Variants[5].Attributes = []string{"gender", "bus_involvement"}

	err := p.Validate()
	require.Error(t, err)

	var ipe *association.InvalidParameterError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "gender", ipe.Value)
	assert.Contains(t, err.Error(), p.Variants[5].Label)
	assert.NotErrorIs(t, err, association.ErrEncoding, "rejected before any table is encoded")
}
