package association

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(ante, cons []Item, conf, lift float64) Rule {
	return Rule{
		Antecedent: NewItemset(ante...),
		Consequent: NewItemset(cons...),
		Support:    0.1,
		Confidence: conf,
		Lift:       lift,
	}
}

func TestConsequentShape(t *testing.T) {
	testCases := []struct {
		name     string
		shape    ConsequentShape
		cons     Itemset
		expected bool
	}{
		{"any accepts multi", AnyConsequent(), Itemset{"a=1", "b=2"}, true},
		{"any rejects empty", AnyConsequent(), Itemset{}, false},
		{"attribute match", SingleItemWithAttribute("road_user"), Itemset{"road_user=Pedestrian"}, true},
		{"attribute mismatch", SingleItemWithAttribute("road_user"), Itemset{"gender=Male"}, false},
		{"attribute prefix is not enough", SingleItemWithAttribute("road"), Itemset{"road_user=Driver"}, false},
		{"two items rejected", SingleItemWithAttribute("road_user"), Itemset{"gender=Male", "road_user=Driver"}, false},
		{"prefix match", SingleItemWithPrefix("road_user="), Itemset{"road_user=Driver"}, true},
		{"prefix mismatch", SingleItemWithPrefix("road_user="), Itemset{"road_type=Local"}, false},
		{
			"predicate on every item",
			ConsequentShape{Predicate: func(it Item) (bool, error) { return it.Value() != "Unknown", nil }},
			Itemset{"a=1", "b=Unknown"},
			false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := tc.shape.Matches(tc.cons)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
		})
	}
}

func TestFilterRules_PredicateFailureFailsTheRun(t *testing.T) {
	rules := []Rule{
		rule([]Item{"a=1"}, []Item{"road_user=Driver"}, 0.9, 2),
		rule([]Item{"a=1"}, []Item{"road_user=Pedestrian"}, 0.9, 2),
	}

	t.Run("returned error", func(t *testing.T) {
		cause := errors.New("script timed out")
		shape := ConsequentShape{Predicate: func(it Item) (bool, error) {
			if it.Value() == "Pedestrian" {
				return false, cause
			}
			return true, nil
		}}
		_, err := FilterRules(rules, FilterOptions{Shape: shape})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPredicate)
		assert.ErrorIs(t, err, cause)

		var pe *PredicateError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, Item("road_user=Pedestrian"), pe.Item)
	})

	t.Run("panic", func(t *testing.T) {
		shape := ConsequentShape{Predicate: func(it Item) (bool, error) {
			return it.Value()[20] == 'x', nil
		}}
		var err error
		require.NotPanics(t, func() {
			_, err = FilterRules(rules, FilterOptions{Shape: shape})
		})
		assert.ErrorIs(t, err, ErrPredicate)
		assert.Contains(t, err.Error(), "panic")
	})
}

func TestFilterRules_ThresholdsAndOrder(t *testing.T) {
	rules := []Rule{
		rule([]Item{"speed=High"}, []Item{"road_user=Driver"}, 0.7, 1.4),
		rule([]Item{"age=0-17"}, []Item{"road_user=Passenger"}, 0.9, 2.1),
		rule([]Item{"gender=Male"}, []Item{"road_user=Driver"}, 0.6, 1.4),
		rule([]Item{"day=Weekend"}, []Item{"road_user=Driver"}, 0.59, 3.0), // below confidence
		rule([]Item{"state=NSW"}, []Item{"road_user=Driver"}, 0.8, 0.99),   // below lift
		rule([]Item{"road_user=Driver"}, []Item{"gender=Male"}, 0.95, 5.0), // wrong consequent
		rule([]Item{"crash=Single"}, []Item{"road_user=Driver"}, 0.7, 1.4),
	}

	got, err := FilterRules(rules, FilterOptions{
		Shape:         SingleItemWithPrefix("road_user="),
		MinConfidence: 0.6,
		MinLift:       1.0,
	})
	require.NoError(t, err)

	var labels []string
	for _, r := range got {
		labels = append(labels, r.String())
	}
	assert.Equal(t, []string{
		"{age=0-17} => {road_user=Passenger}",
		"{crash=Single} => {road_user=Driver}", // ties on lift and confidence break on labels
		"{speed=High} => {road_user=Driver}",
		"{gender=Male} => {road_user=Driver}",
	}, labels)
}

func TestFilterRules_InclusiveThresholds(t *testing.T) {
	rules := []Rule{rule([]Item{"a"}, []Item{"b"}, 0.6, 1.0)}

	got, err := FilterRules(rules, FilterOptions{MinConfidence: 0.6, MinLift: 1.0})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFilterRules_DeduplicatesKeepingBestRanked(t *testing.T) {
	rules := []Rule{
		rule([]Item{"a"}, []Item{"b"}, 0.7, 1.2),
		rule([]Item{"a"}, []Item{"b"}, 0.8, 1.5),
		rule([]Item{"a"}, []Item{"c"}, 0.8, 1.3),
	}
	rules[1].Variant = "limit_easter_bus"

	got, err := FilterRules(rules, FilterOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "limit_easter_bus", got[0].Variant)
	assert.Equal(t, 1.5, got[0].Lift)
}

func TestFilterRules_TopK(t *testing.T) {
	rules := []Rule{
		rule([]Item{"a"}, []Item{"b"}, 0.7, 1.2),
		rule([]Item{"a"}, []Item{"c"}, 0.7, 1.3),
		rule([]Item{"a"}, []Item{"d"}, 0.7, 1.4),
	}

	got, err := FilterRules(rules, FilterOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.4, got[0].Lift)

	got, err = FilterRules(rules, FilterOptions{TopK: 10})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestFilterRules_Idempotent(t *testing.T) {
	res := abcRules(t)
	opts := FilterOptions{Shape: ConsequentShape{ExactlyOne: true}, MinConfidence: 0.5, MinLift: 0.8, TopK: 5}

	once, err := FilterRules(res.Rules, opts)
	require.NoError(t, err)
	twice, err := FilterRules(once, opts)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestFilterRules_DoesNotMutateInput(t *testing.T) {
	rules := []Rule{
		rule([]Item{"a"}, []Item{"b"}, 0.7, 1.2),
		rule([]Item{"a"}, []Item{"c"}, 0.7, 1.3),
	}
	before := append([]Rule(nil), rules...)

	_, err := FilterRules(rules, FilterOptions{})
	require.NoError(t, err)
	assert.Equal(t, before, rules)
}

func TestFilterOptions_Validate(t *testing.T) {
	testCases := []struct {
		name string
		opts FilterOptions
	}{
		{"confidence above one", FilterOptions{MinConfidence: 1.01}},
		{"negative confidence", FilterOptions{MinConfidence: -0.1}},
		{"negative lift", FilterOptions{MinLift: -1}},
		{"NaN lift", FilterOptions{MinLift: math.NaN()}},
		{"negative top k", FilterOptions{TopK: -3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FilterRules(nil, tc.opts)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestFilterRules_EmptyIsNotAnError(t *testing.T) {
	got, err := FilterRules(nil, FilterOptions{MinConfidence: 0.9})
	require.NoError(t, err)
	assert.Empty(t, got)
}
