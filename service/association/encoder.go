/*
 * @module service/association/encoder
 * @description Transaction encoder: turns selected categorical columns into a sparse item presence matrix
 * @architecture Domain layer - first stage of the mining pipeline
 * @stateFlow schema check -> per-row tokenisation -> sorted vocabulary -> index rows
 * @rules Null cells produce no item; at most one item per attribute per row; output is deterministic
 * @dependencies sort, strings
 * @refs miner.go
 */

package association

import (
	"sort"
	"strings"
)

// Encoding is the vocabulary plus one sparse row per transaction.
// It is read-only after construction.
type Encoding struct {
	vocabulary []Item
	index      map[Item]int
	attrOf     []int   // attribute ordinal of each vocabulary item
	rows       [][]int // sorted vocabulary indices per transaction

	// singleValued is set when every transaction holds at most one item per
	// attribute, which lets the miner skip same-attribute candidates.
	singleValued bool
	attributes   []string
}

// Encode tokenises the selected attributes of table, in row order.
// Every attribute must exist in the schema; a zero-row table yields an empty
// encoding rather than an error.
func Encode(table Table, attributes []string) (*Encoding, error) {
	if table == nil {
		return nil, &EncodingError{Reason: "nil table"}
	}
	if len(attributes) == 0 {
		return nil, &EncodingError{Reason: "no attributes selected"}
	}

	schema := table.Schema()
	cols := make([]int, len(attributes))
	seen := make(map[string]struct{}, len(attributes))
	for i, name := range attributes {
		if strings.Contains(name, ItemSeparator) {
			return nil, &EncodingError{Attribute: name, Reason: "attribute name contains " + ItemSeparator}
		}
		if _, dup := seen[name]; dup {
			return nil, &EncodingError{Attribute: name, Reason: "selected twice"}
		}
		seen[name] = struct{}{}

		idx, _, ok := schema.Lookup(name)
		if !ok {
			return nil, &EncodingError{Attribute: name, Reason: "not present in table"}
		}
		cols[i] = idx
	}

	n := table.Len()
	tokens := make([][]Item, n)
	attrByItem := make(map[Item]int)
	for r := 0; r < n; r++ {
		row := make([]Item, 0, len(cols))
		for a, c := range cols {
			v := table.Value(r, c)
			if v.IsNull() {
				continue
			}
			it := NewItem(attributes[a], v.Text())
			row = append(row, it)
			attrByItem[it] = a
		}
		tokens[r] = row
	}

	enc := buildEncoding(tokens)
	enc.singleValued = true
	enc.attributes = append([]string(nil), attributes...)
	for i, it := range enc.vocabulary {
		enc.attrOf[i] = attrByItem[it]
	}
	return enc, nil
}

// EncodeTransactions builds an encoding straight from item baskets, the way a
// classic transaction encoder does. Duplicate items inside a basket collapse.
func EncodeTransactions(transactions [][]Item) *Encoding {
	enc := buildEncoding(transactions)
	for i := range enc.attrOf {
		enc.attrOf[i] = -1
	}
	return enc
}

func buildEncoding(tokens [][]Item) *Encoding {
	distinct := make(map[Item]struct{})
	for _, row := range tokens {
		for _, it := range row {
			distinct[it] = struct{}{}
		}
	}

	vocab := make([]Item, 0, len(distinct))
	for it := range distinct {
		vocab = append(vocab, it)
	}
	sort.Slice(vocab, func(a, b int) bool { return vocab[a] < vocab[b] })

	index := make(map[Item]int, len(vocab))
	for i, it := range vocab {
		index[it] = i
	}

	rows := make([][]int, len(tokens))
	for r, row := range tokens {
		ids := make([]int, 0, len(row))
		for _, it := range row {
			ids = append(ids, index[it])
		}
		sort.Ints(ids)
		rows[r] = dedupSorted(ids)
	}

	return &Encoding{
		vocabulary: vocab,
		index:      index,
		attrOf:     make([]int, len(vocab)),
		rows:       rows,
	}
}

func dedupSorted(ids []int) []int {
	n := 0
	for i, id := range ids {
		if i > 0 && id == ids[n-1] {
			continue
		}
		ids[n] = id
		n++
	}
	return ids[:n]
}

// Len returns the number of transactions.
func (e *Encoding) Len() int { return len(e.rows) }

// Vocabulary returns the sorted distinct items.
func (e *Encoding) Vocabulary() []Item {
	return append([]Item(nil), e.vocabulary...)
}

// Attributes returns the selected attributes, or nil for basket encodings.
func (e *Encoding) Attributes() []string {
	return append([]string(nil), e.attributes...)
}

// Index returns the matrix column of item.
func (e *Encoding) Index(item Item) (int, bool) {
	idx, ok := e.index[item]
	return idx, ok
}

// Transaction returns the items of row r.
func (e *Encoding) Transaction(r int) Itemset {
	out := make(Itemset, len(e.rows[r]))
	for i, id := range e.rows[r] {
		out[i] = e.vocabulary[id]
	}
	return out
}

// Present reports whether row r contains item.
func (e *Encoding) Present(r int, item Item) bool {
	idx, ok := e.index[item]
	if !ok {
		return false
	}
	row := e.rows[r]
	pos := sort.SearchInts(row, idx)
	return pos < len(row) && row[pos] == idx
}

// Matrix materialises the dense boolean presence matrix,
// one row per transaction and one column per vocabulary item.
func (e *Encoding) Matrix() [][]bool {
	m := make([][]bool, len(e.rows))
	for r, row := range e.rows {
		m[r] = make([]bool, len(e.vocabulary))
		for _, id := range row {
			m[r][id] = true
		}
	}
	return m
}

// distinctAttributes is the natural itemset size bound of a table encoding.
func (e *Encoding) distinctAttributes() int {
	if !e.singleValued {
		return len(e.vocabulary)
	}
	return len(e.attributes)
}
