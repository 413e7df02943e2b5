package association

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supportsByKey(itemsets []FrequentItemset) map[string]float64 {
	out := make(map[string]float64, len(itemsets))
	for _, fi := range itemsets {
		out[fi.Items.Key()] = fi.Support
	}
	return out
}

func TestMineFrequentItemsets_ABCScenario(t *testing.T) {
	enc := EncodeTransactions(abcBaskets())

	itemsets, err := MineFrequentItemsets(context.Background(), enc, MinerOptions{MinSupport: 0.4})
	require.NoError(t, err)

	expected := []struct {
		items   Itemset
		support float64
	}{
		{Itemset{"A"}, 0.8},
		{Itemset{"B"}, 0.8},
		{Itemset{"C"}, 0.8},
		{Itemset{"A", "B"}, 0.6},
		{Itemset{"A", "C"}, 0.6},
		{Itemset{"B", "C"}, 0.6},
		{Itemset{"A", "B", "C"}, 0.4},
	}
	require.Len(t, itemsets, len(expected))
	for i, want := range expected {
		assert.Equal(t, want.items, itemsets[i].Items)
		assert.InDelta(t, want.support, itemsets[i].Support, 1e-12, "support of %s", want.items)
	}
	assert.Equal(t, 2, itemsets[6].Count)
}

func TestMineFrequentItemsets_ThresholdIsInclusive(t *testing.T) {
	enc := EncodeTransactions(abcBaskets())

	itemsets, err := MineFrequentItemsets(context.Background(), enc, MinerOptions{MinSupport: 0.6})
	require.NoError(t, err)
	assert.Len(t, itemsets, 6, "pairs at exactly 0.6 are kept, the triple at 0.4 is not")

	itemsets, err = MineFrequentItemsets(context.Background(), enc, MinerOptions{MinSupport: 1})
	require.NoError(t, err)
	assert.Empty(t, itemsets)
}

func TestMineFrequentItemsets_MaxItemsetSize(t *testing.T) {
	enc := EncodeTransactions(abcBaskets())

	itemsets, err := MineFrequentItemsets(context.Background(), enc, MinerOptions{MinSupport: 0.4, MaxItemsetSize: 2})
	require.NoError(t, err)
	for _, fi := range itemsets {
		assert.LessOrEqual(t, fi.Items.Len(), 2)
	}
	assert.Len(t, itemsets, 6)
}

func TestMineFrequentItemsets_InvalidParameters(t *testing.T) {
	enc := EncodeTransactions(abcBaskets())

	testCases := []struct {
		name string
		opts MinerOptions
	}{
		{name: "support above one", opts: MinerOptions{MinSupport: 1.1}},
		{name: "zero support", opts: MinerOptions{MinSupport: 0}},
		{name: "negative support", opts: MinerOptions{MinSupport: -0.2}},
		{name: "NaN support", opts: MinerOptions{MinSupport: math.NaN()}},
		{name: "negative max size", opts: MinerOptions{MinSupport: 0.5, MaxItemsetSize: -1}},
		{name: "max size above limit", opts: MinerOptions{MinSupport: 0.5, MaxItemsetSize: MaxItemsetSizeLimit + 1}},
		{name: "negative candidates", opts: MinerOptions{MinSupport: 0.5, MaxCandidates: -1}},
		{name: "negative workers", opts: MinerOptions{MinSupport: 0.5, Workers: -1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MineFrequentItemsets(context.Background(), enc, tc.opts)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestMineFrequentItemsets_EmptyInputs(t *testing.T) {
	itemsets, err := MineFrequentItemsets(context.Background(), EncodeTransactions(nil), MinerOptions{MinSupport: 0.5})
	require.NoError(t, err)
	assert.NotNil(t, itemsets)
	assert.Empty(t, itemsets)

	itemsets, err = MineFrequentItemsets(context.Background(), EncodeTransactions([][]Item{{}, {}}), MinerOptions{MinSupport: 0.5})
	require.NoError(t, err)
	assert.Empty(t, itemsets)
}

func TestMineFrequentItemsets_CandidateExplosion(t *testing.T) {
	vocab := make([]Item, 30)
	for i := range vocab {
		vocab[i] = Item(fmt.Sprintf("item%02d", i))
	}
	baskets := [][]Item{vocab, vocab, vocab}

	_, err := MineFrequentItemsets(context.Background(), EncodeTransactions(baskets), MinerOptions{
		MinSupport:    1,
		MaxCandidates: 10,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCandidateExplosion))

	var explosion *CandidateExplosionError
	require.True(t, errors.As(err, &explosion))
	assert.Equal(t, 2, explosion.Level)
	assert.Equal(t, 30*29/2, explosion.Candidates)
	assert.Equal(t, 10, explosion.Limit)
}

func TestMineFrequentItemsets_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MineFrequentItemsets(ctx, EncodeTransactions(abcBaskets()), MinerOptions{MinSupport: 0.4})
	assert.ErrorIs(t, err, context.Canceled)
}

// bruteForce enumerates every subset of the vocabulary and counts it directly
// against the presence matrix.
func bruteForce(enc *Encoding, minSupport float64) map[string]float64 {
	vocab := enc.Vocabulary()
	matrix := enc.Matrix()
	out := make(map[string]float64)
	for mask := 1; mask < 1<<len(vocab); mask++ {
		var items Itemset
		var cols []int
		for i := range vocab {
			if mask&(1<<i) != 0 {
				items = append(items, vocab[i])
				cols = append(cols, i)
			}
		}
		count := 0
		for _, row := range matrix {
			all := true
			for _, c := range cols {
				if !row[c] {
					all = false
					break
				}
			}
			if all {
				count++
			}
		}
		if s := float64(count) / float64(len(matrix)); s >= minSupport {
			out[items.Key()] = s
		}
	}
	return out
}

func TestMineFrequentItemsets_MatchesBruteForce(t *testing.T) {
	vocab := []Item{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	for _, workers := range []int{1, 4} {
		for seed := int64(1); seed <= 5; seed++ {
			t.Run(fmt.Sprintf("seed=%d/workers=%d", seed, workers), func(t *testing.T) {
				enc := EncodeTransactions(randomBaskets(seed, 300, vocab, 0.45))

				got, err := MineFrequentItemsets(context.Background(), enc, MinerOptions{MinSupport: 0.05, Workers: workers})
				require.NoError(t, err)

				want := bruteForce(enc, 0.05)
				gotSupports := supportsByKey(got)
				require.Equal(t, len(want), len(gotSupports))
				for key, s := range want {
					assert.InDelta(t, s, gotSupports[key], 1e-12, "itemset %q", key)
				}
			})
		}
	}
}

func TestMineFrequentItemsets_DownwardClosureAndMonotonicity(t *testing.T) {
	vocab := []Item{"a", "b", "c", "d", "e", "f", "g", "h"}
	enc := EncodeTransactions(randomBaskets(42, 500, vocab, 0.5))

	itemsets, err := MineFrequentItemsets(context.Background(), enc, MinerOptions{MinSupport: 0.08})
	require.NoError(t, err)
	supports := supportsByKey(itemsets)

	for _, fi := range itemsets {
		n := fi.Items.Len()
		if n < 2 {
			continue
		}
		for mask := 1; mask < 1<<n-1; mask++ {
			sub, _ := split(fi.Items, uint32(mask))
			s, ok := supports[sub.Key()]
			require.True(t, ok, "subset %s of %s missing", sub, fi.Items)
			assert.GreaterOrEqual(t, s, fi.Support)
		}
	}
}

func TestMineFrequentItemsets_TableEncodingNeverPairsOneAttribute(t *testing.T) {
	enc, err := Encode(fatalityTable(t), []string{"gender", "speed_category", "road_user"})
	require.NoError(t, err)

	itemsets, err := MineFrequentItemsets(context.Background(), enc, MinerOptions{MinSupport: 0.1})
	require.NoError(t, err)

	for _, fi := range itemsets {
		attrs := map[string]bool{}
		for _, it := range fi.Items {
			assert.False(t, attrs[it.Attribute()], "itemset %s repeats an attribute", fi.Items)
			attrs[it.Attribute()] = true
		}
		assert.LessOrEqual(t, fi.Items.Len(), 3)
	}
}
