package association

import "math/bits"

// tidset is a fixed-width bitset over transaction ids.
type tidset []uint64

func newTidset(n int) tidset { return make(tidset, (n+63)/64) }

func (t tidset) set(i int) { t[i>>6] |= 1 << (uint(i) & 63) }

func (t tidset) count() int {
	c := 0
	for _, w := range t {
		c += bits.OnesCount64(w)
	}
	return c
}

// intersect returns a & b as a new set.
func intersect(a, b tidset) tidset {
	out := make(tidset, len(a))
	for i := range a {
		out[i] = a[i] & b[i]
	}
	return out
}

// columnTidsets transposes the sparse rows into one tidset per vocabulary item.
func columnTidsets(e *Encoding) []tidset {
	cols := make([]tidset, len(e.vocabulary))
	for i := range cols {
		cols[i] = newTidset(len(e.rows))
	}
	for r, row := range e.rows {
		for _, id := range row {
			cols[id].set(r)
		}
	}
	return cols
}
