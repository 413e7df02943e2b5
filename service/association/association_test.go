/*
 * @module service/association/association_test
 * @description Shared fixtures for the mining engine tests
 * @architecture Test layer - pure functions, no external dependencies
 * @dependencies testing, testify, goleak
 */

package association

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// abcBaskets is {A,B}, {A,B,C}, {A,C}, {B,C}, {A,B,C}.
func abcBaskets() [][]Item {
	return [][]Item{
		{"A", "B"},
		{"A", "B", "C"},
		{"A", "C"},
		{"B", "C"},
		{"A", "B", "C"},
	}
}

// fatalityTable is a small person-level extract of the star schema.
func fatalityTable(t *testing.T) *MemoryTable {
	t.Helper()
	schema, err := NewSchema(
		Column{Name: "gender", Type: ColumnString},
		Column{Name: "speed_category", Type: ColumnString},
		Column{Name: "easter_period", Type: ColumnBool},
		Column{Name: "speed_limit", Type: ColumnInteger},
		Column{Name: "road_user", Type: ColumnString},
		Column{Name: "state", Type: ColumnString},
	)
	require.NoError(t, err)

	row := func(gender, speed string, easter bool, limit int64, user string) []Value {
		return []Value{StringValue(gender), StringValue(speed), BoolValue(easter), IntValue(limit), StringValue(user), Null()}
	}
	table, err := NewMemoryTable(schema, [][]Value{
		row("Male", "High", false, 100, "Driver"),
		row("Male", "High", false, 110, "Driver"),
		row("Male", "High", true, 100, "Driver"),
		row("Female", "Low", false, 50, "Pedestrian"),
		row("Female", "Low", false, 50, "Pedestrian"),
		row("Male", "Low", false, 60, "Pedestrian"),
		row("Female", "High", true, 100, "Passenger"),
		{StringValue("Male"), Null(), BoolValue(false), Null(), StringValue("Motorcycle rider"), Null()},
	})
	require.NoError(t, err)
	return table
}

// randomBaskets draws baskets over vocab with a fixed seed.
func randomBaskets(seed int64, n int, vocab []Item, p float64) [][]Item {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]Item, n)
	for i := range out {
		for _, it := range vocab {
			if rng.Float64() < p {
				out[i] = append(out[i], it)
			}
		}
	}
	return out
}

func contextForTest(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}

// panicTable fails the test if the engine reads a single cell.
type panicTable struct{ schema Schema }

func (p panicTable) Schema() Schema { return p.schema }
func (p panicTable) Len() int       { return 3 }
func (p panicTable) Value(row, col int) Value {
	panic("table scanned")
}
