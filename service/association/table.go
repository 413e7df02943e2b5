/*
 * @module service/association/table
 * @description Typed, schema-checked record table consumed by the transaction encoder
 * @architecture Domain layer - table abstraction at the record provider boundary
 * @stateFlow provider builds schema + rows -> encoder selects columns by name -> rows iterated
 * @rules Null is an explicit cell state; values must match their column type
 * @dependencies fmt, strconv
 */

package association

import (
	"fmt"
	"strconv"
)

// ColumnType is the declared type of a table column.
type ColumnType int

const (
	ColumnString  ColumnType = iota // categorical text
	ColumnBool                      // tokenised as "true" / "false"
	ColumnInteger                   // already-bucketed numeric category, tokenised in base 10
)

func (t ColumnType) String() string {
	switch t {
	case ColumnString:
		return "string"
	case ColumnBool:
		return "bool"
	case ColumnInteger:
		return "integer"
	default:
		return "unknown"
	}
}

// Value is one cell: a typed value or null.
type Value struct {
	kind  ColumnType
	valid bool
	s     string
	b     bool
	i     int64
}

// StringValue returns a non-null text cell.
func StringValue(s string) Value { return Value{kind: ColumnString, valid: true, s: s} }

// BoolValue returns a non-null boolean cell.
func BoolValue(b bool) Value { return Value{kind: ColumnBool, valid: true, b: b} }

// IntValue returns a non-null integer cell.
func IntValue(i int64) Value { return Value{kind: ColumnInteger, valid: true, i: i} }

// Null returns a missing cell.
func Null() Value { return Value{} }

// IsNull reports whether the cell is missing.
func (v Value) IsNull() bool { return !v.valid }

// Kind returns the value type; meaningless for nulls.
func (v Value) Kind() ColumnType { return v.kind }

// Text returns the stable textual form used for tokenisation.
// Booleans become "true"/"false" and integers their base-10 form.
func (v Value) Text() string {
	if !v.valid {
		return ""
	}
	switch v.kind {
	case ColumnBool:
		return strconv.FormatBool(v.b)
	case ColumnInteger:
		return strconv.FormatInt(v.i, 10)
	default:
		return v.s
	}
}

// Column describes one named column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is an ordered list of uniquely named columns.
type Schema struct {
	columns []Column
	index   map[string]int
}

// NewSchema builds a schema, rejecting empty or duplicated names.
func NewSchema(columns ...Column) (Schema, error) {
	s := Schema{columns: make([]Column, len(columns)), index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if c.Name == "" {
			return Schema{}, fmt.Errorf("association: column %d has an empty name", i)
		}
		if _, dup := s.index[c.Name]; dup {
			return Schema{}, fmt.Errorf("association: duplicate column %q", c.Name)
		}
		s.columns[i] = c
		s.index[c.Name] = i
	}
	return s, nil
}

// Columns returns a copy of the column list.
func (s Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.columns) }

// Lookup finds a column by name.
func (s Schema) Lookup(name string) (int, Column, bool) {
	idx, ok := s.index[name]
	if !ok {
		return -1, Column{}, false
	}
	return idx, s.columns[idx], true
}

// Table is a rectangular table of categorical cells.
type Table interface {
	Schema() Schema
	Len() int
	Value(row, col int) Value
}

// MemoryTable is an immutable in-memory Table.
type MemoryTable struct {
	schema Schema
	rows   [][]Value
}

// NewMemoryTable validates row widths and cell types against the schema.
// Rows are copied so later mutation by the caller has no effect.
func NewMemoryTable(schema Schema, rows [][]Value) (*MemoryTable, error) {
	copied := make([][]Value, len(rows))
	for r, row := range rows {
		if len(row) != schema.Len() {
			return nil, fmt.Errorf("association: row %d has %d cells, schema has %d columns", r, len(row), schema.Len())
		}
		for c, v := range row {
			if v.IsNull() {
				continue
			}
			if want := schema.columns[c].Type; v.kind != want {
				return nil, fmt.Errorf("association: row %d column %q: %s value in %s column",
					r, schema.columns[c].Name, v.kind, want)
			}
		}
		copied[r] = append([]Value(nil), row...)
	}
	return &MemoryTable{schema: schema, rows: copied}, nil
}

func (t *MemoryTable) Schema() Schema { return t.schema }

func (t *MemoryTable) Len() int { return len(t.rows) }

func (t *MemoryTable) Value(row, col int) Value { return t.rows[row][col] }
