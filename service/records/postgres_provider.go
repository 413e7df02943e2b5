/*
 * @module service/records/postgres_provider
 * @description Loads person-level fatality records from the relational star schema
 * @architecture Data access layer - gorm raw SQL over the warehouse tables
 * @stateFlow attribute check -> SELECT with inner joins -> row scan -> coercion -> MemoryTable
 * @rules Attribute names are validated against the catalogue before any SQL is built;
 *        identifiers are always quoted; rows are ordered by the fact key for determinism
 * @dependencies gorm.io/gorm, github.com/lib/pq
 * @refs catalogue.go
 */

package records

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// PostgresProvider reads the star schema through gorm.
type PostgresProvider struct {
	db       *gorm.DB
	schema   string
	cleanser *Cleanser
	logger   *slog.Logger
}

// PostgresOption configures a PostgresProvider.
type PostgresOption func(*PostgresProvider)

// WithSchema qualifies every table with a database schema, e.g. "public".
func WithSchema(schema string) PostgresOption {
	return func(p *PostgresProvider) { p.schema = schema }
}

// WithCleanser sets the sentinel cleanser applied to every cell.
func WithCleanser(c *Cleanser) PostgresOption {
	return func(p *PostgresProvider) { p.cleanser = c }
}

// NewPostgresProvider creates a provider over db.
func NewPostgresProvider(db *gorm.DB, opts ...PostgresOption) *PostgresProvider {
	p := &PostgresProvider{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PostgresProvider) table(name string) string {
	if p.schema == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(p.schema) + "." + pq.QuoteIdentifier(name)
}

// buildQuery projects attrs out of the fact table joined to every dimension.
func (p *PostgresProvider) buildQuery(attrs []Attribute) string {
	alias := map[string]string{FactTable: "f"}
	for i, d := range Dimensions {
		alias[d.Table] = fmt.Sprintf("d%d", i)
	}

	cols := make([]string, len(attrs))
	for i, a := range attrs {
		cols[i] = alias[a.Table] + "." + pq.QuoteIdentifier(a.Name) + " AS " + pq.QuoteIdentifier(a.Name)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(p.table(FactTable))
	sb.WriteString(" f")
	for _, d := range Dimensions {
		a := alias[d.Table]
		key := pq.QuoteIdentifier(d.Key)
		fmt.Fprintf(&sb, " INNER JOIN %s %s ON f.%s = %s.%s", p.table(d.Table), a, key, a, key)
	}
	sb.WriteString(" ORDER BY f.")
	sb.WriteString(pq.QuoteIdentifier("fact_person_fatality_id"))
	return sb.String()
}

// Load implements Provider.
func (p *PostgresProvider) Load(ctx context.Context, attributes []string) (association.Table, error) {
	attrs, schema, err := resolve(attributes)
	if err != nil {
		return nil, err
	}

	query := p.buildQuery(attrs)
	rows, err := p.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("records: query star schema: %w", err)
	}
	defer rows.Close()

	var out [][]association.Value
	values := make([]interface{}, len(attrs))
	scanArgs := make([]interface{}, len(attrs))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("records: scan row %d: %w", len(out), err)
		}
		row := make([]association.Value, len(attrs))
		for i, a := range attrs {
			v, err := coerce(values[i], a.Type, p.cleanser)
			if err != nil {
				return nil, fmt.Errorf("records: row %d column %s: %w", len(out), a.Name, err)
			}
			row[i] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: iterate rows: %w", err)
	}

	p.logger.Debug("records: star schema loaded", "rows", len(out), "attributes", len(attrs))
	return association.NewMemoryTable(schema, out)
}
