/*
 * @module service/records/csv_provider
 * @description Loads person-level fatality records from the CSV export of the star schema
 * @architecture Data access layer - file based provider used offline and in tests
 * @stateFlow read <table>.csv files -> index dimensions by surrogate key -> inner join per fact row -> project
 * @rules Fact rows whose keys miss any dimension are dropped, matching the SQL inner joins;
 *        empty cells are null; output keeps fact file order
 * @dependencies encoding/csv, golang.org/x/text
 * @refs catalogue.go, postgres_provider.go
 */

package records

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// Supported CSV charsets.
const (
	CharsetUTF8 = "utf-8"
	CharsetGBK  = "gbk"
)

// CSVProvider reads one <table>.csv per star-schema table from a directory.
type CSVProvider struct {
	dir      string
	charset  string
	cleanser *Cleanser
	logger   *slog.Logger
}

// CSVOption configures a CSVProvider.
type CSVOption func(*CSVProvider)

// WithCharset sets the file encoding, CharsetUTF8 by default.
func WithCharset(charset string) CSVOption {
	return func(p *CSVProvider) { p.charset = strings.ToLower(charset) }
}

// WithCSVCleanser sets the sentinel cleanser applied to every cell.
func WithCSVCleanser(c *Cleanser) CSVOption {
	return func(p *CSVProvider) { p.cleanser = c }
}

// NewCSVProvider creates a provider reading from dir.
func NewCSVProvider(dir string, opts ...CSVOption) (*CSVProvider, error) {
	p := &CSVProvider{dir: dir, charset: CharsetUTF8, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	switch p.charset {
	case CharsetUTF8, "utf8", CharsetGBK:
	default:
		return nil, fmt.Errorf("records: unsupported csv charset %q", p.charset)
	}
	return p, nil
}

type csvTable struct {
	name   string
	header map[string]int
	rows   [][]string
}

func (t *csvTable) column(name string) (int, error) {
	idx, ok := t.header[name]
	if !ok {
		return 0, fmt.Errorf("records: %s.csv has no column %q", t.name, name)
	}
	return idx, nil
}

func (p *CSVProvider) reader(f io.Reader) io.Reader {
	if p.charset == CharsetGBK {
		return transform.NewReader(f, simplifiedchinese.GBK.NewDecoder())
	}
	return f
}

func (p *CSVProvider) readTable(name string) (*csvTable, error) {
	f, err := os.Open(filepath.Join(p.dir, name+".csv"))
	if err != nil {
		return nil, fmt.Errorf("records: open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(p.reader(f))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("records: parse %s.csv: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("records: %s.csv has no header", name)
	}

	header := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[strings.TrimSpace(h)] = i
	}
	return &csvTable{name: name, header: header, rows: records[1:]}, nil
}

// Load implements Provider.
func (p *CSVProvider) Load(ctx context.Context, attributes []string) (association.Table, error) {
	attrs, schema, err := resolve(attributes)
	if err != nil {
		return nil, err
	}

	fact, err := p.readTable(FactTable)
	if err != nil {
		return nil, err
	}

	// per dimension: fact key column, and dimension rows by key
	type joined struct {
		factKey int
		index   map[string][]string
		table   *csvTable
	}
	dims := make(map[string]*joined, len(Dimensions))
	order := make([]*joined, 0, len(Dimensions))
	for _, d := range Dimensions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := p.readTable(d.Table)
		if err != nil {
			return nil, err
		}
		dimKey, err := t.column(d.Key)
		if err != nil {
			return nil, err
		}
		factKey, err := fact.column(d.Key)
		if err != nil {
			return nil, err
		}
		j := &joined{factKey: factKey, index: make(map[string][]string, len(t.rows)), table: t}
		for _, row := range t.rows {
			key := strings.TrimSpace(row[dimKey])
			if _, dup := j.index[key]; !dup {
				j.index[key] = row
			}
		}
		dims[d.Table] = j
		order = append(order, j)
	}

	cols := make([]int, len(attrs))
	for i, a := range attrs {
		if cols[i], err = dims[a.Table].table.column(a.Name); err != nil {
			return nil, err
		}
	}

	var out [][]association.Value
	dropped := 0
	matched := make(map[*joined][]string, len(order))
	for _, fr := range fact.rows {
		ok := true
		for _, j := range order {
			dr, found := j.index[strings.TrimSpace(fr[j.factKey])]
			if !found {
				ok = false
				break
			}
			matched[j] = dr
		}
		if !ok {
			dropped++
			continue
		}

		row := make([]association.Value, len(attrs))
		for i, a := range attrs {
			var raw interface{}
			if cell := matched[dims[a.Table]][cols[i]]; cell != "" {
				raw = cell
			}
			v, err := coerce(raw, a.Type, p.cleanser)
			if err != nil {
				return nil, fmt.Errorf("records: %s.csv column %s: %w", a.Table, a.Name, err)
			}
			row[i] = v
		}
		out = append(out, row)
	}

	p.logger.Debug("records: csv export loaded", "rows", len(out), "dropped", dropped, "attributes", len(attrs))
	return association.NewMemoryTable(schema, out)
}
