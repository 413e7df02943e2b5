package records

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hanamichi-me/DW-traffic/service/association"
	"github.com/hanamichi-me/DW-traffic/testutil"
)

type fixtureTable struct {
	name   string
	header []string
	rows   [][]string
}

// starFixture is a five-person extract of the warehouse. Fact row 5 points at
// a crash type that does not exist and must be dropped by the inner join.
func starFixture() []fixtureTable {
	return []fixtureTable{
		{"dim_person", []string{"person_id", "age", "age_group", "gender", "road_user"}, [][]string{
			{"1", "34", "26_to_39", "Male", "Driver"},
			{"2", "8", "0_to_16", "Female", "Passenger"},
			{"3", "70", "65_to_74", "Male", "Pedestrian"},
			{"4", "-9", "", "Unknown", "Other/-9"},
		}},
		{"dim_date", []string{"date_id", "year", "month", "quarter", "day_of_week_name", "day_type"}, [][]string{
			{"1", "2023", "12", "4", "Friday", "Weekday"},
			{"2", "2024", "4", "2", "Sunday", "Weekend"},
		}},
		{"dim_holiday", []string{"holiday_id", "christmas_period", "easter_period"}, [][]string{
			{"1", "True", "False"},
			{"2", "False", "True"},
		}},
		{"dim_location", []string{"location_id", "state", "lga_name", "sa4_name", "remoteness_area", "population_2023_lga", "population_2023_remoteness", "dwelling_records"}, [][]string{
			{"1", "NSW", "Sydney", "Sydney - City and Inner South", "Major Cities of Australia", "220000", "5100000", "95000"},
		}},
		{"dim_road", []string{"road_id", "road_type", "speed_limit", "speed_category"}, [][]string{
			{"1", "Local Road", "50", "Low"},
			{"2", "National or State Highway", "110", "High"},
		}},
		{"dim_vehicle", []string{"vehicle_id", "bus_involvement", "heavy_rigid_truck_involvement", "articulated_truck_involvement"}, [][]string{
			{"1", "No", "No", "Yes"},
		}},
		{"dim_crash_type", []string{"crash_type_id", "crash_type"}, [][]string{
			{"1", "Single"},
			{"2", "Multiple"},
		}},
		{"dim_time", []string{"time_of_day_id", "time_of_day"}, [][]string{
			{"1", "Day"},
			{"2", "Night"},
		}},
		{FactTable, []string{"fact_person_fatality_id", "crash_id", "date_id", "holiday_id", "person_id", "location_id", "road_id", "vehicle_id", "crash_type_id", "time_of_day_id"}, [][]string{
			{"1", "100", "1", "1", "1", "1", "2", "1", "1", "2"},
			{"2", "100", "1", "1", "2", "1", "2", "1", "1", "2"},
			{"3", "101", "2", "2", "3", "1", "1", "1", "2", "1"},
			{"4", "102", "2", "2", "4", "1", "1", "1", "2", "1"},
			{"5", "103", "2", "2", "1", "1", "1", "1", "9", "1"},
		}},
	}
}

func writeCSVFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, tbl := range starFixture() {
		f, err := os.Create(filepath.Join(dir, tbl.name+".csv"))
		require.NoError(t, err)
		w := csv.NewWriter(f)
		require.NoError(t, w.Write(tbl.header))
		require.NoError(t, w.WriteAll(tbl.rows))
		require.NoError(t, f.Close())
	}
	return dir
}

func sqlType(column string) string {
	if strings.HasSuffix(column, "_id") {
		return "INTEGER"
	}
	if a, ok := LookupAttribute(column); ok {
		switch a.Type {
		case association.ColumnBool:
			return "BOOLEAN"
		case association.ColumnInteger:
			return "INTEGER"
		}
	}
	return "TEXT"
}

func loadSQLFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, tbl := range starFixture() {
		defs := make([]string, len(tbl.header))
		marks := make([]string, len(tbl.header))
		for i, col := range tbl.header {
			defs[i] = fmt.Sprintf("%s %s", col, sqlType(col))
			marks[i] = "?"
		}
		require.NoError(t, db.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", tbl.name, strings.Join(defs, ", "))).Error)

		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tbl.name, strings.Join(tbl.header, ", "), strings.Join(marks, ", "))
		for _, row := range tbl.rows {
			args := make([]interface{}, len(row))
			for i, cell := range row {
				switch {
				case sqlType(tbl.header[i]) == "BOOLEAN":
					args[i] = cell == "True"
				default:
					args[i] = cell
				}
			}
			require.NoError(t, db.Exec(insert, args...).Error)
		}
	}
}

var projected = []string{"gender", "road_user", "speed_category", "easter_period", "speed_limit", "age"}

func expectedRows() [][]association.Value {
	s, b, i, null := association.StringValue, association.BoolValue, association.IntValue, association.Null
	return [][]association.Value{
		{s("Male"), s("Driver"), s("High"), b(false), i(110), i(34)},
		{s("Female"), s("Passenger"), s("High"), b(false), i(110), i(8)},
		{s("Male"), s("Pedestrian"), s("Low"), b(true), i(50), i(70)},
		{null(), null(), s("Low"), b(true), i(50), null()},
	}
}

func tableRows(table association.Table) [][]association.Value {
	out := make([][]association.Value, table.Len())
	for r := range out {
		out[r] = make([]association.Value, table.Schema().Len())
		for c := range out[r] {
			out[r][c] = table.Value(r, c)
		}
	}
	return out
}

func TestCSVProvider_Load(t *testing.T) {
	p, err := NewCSVProvider(writeCSVFixture(t), WithCSVCleanser(DefaultCleanser()))
	require.NoError(t, err)

	table, err := p.Load(context.Background(), projected)
	require.NoError(t, err)

	cols := table.Schema().Columns()
	require.Len(t, cols, len(projected))
	assert.Equal(t, association.ColumnBool, cols[3].Type)
	assert.Equal(t, association.ColumnInteger, cols[4].Type)
	assert.Equal(t, expectedRows(), tableRows(table))
}

func TestPostgresProvider_Load(t *testing.T) {
	db := testutil.NewTestDB().DB
	loadSQLFixture(t, db)

	p := NewPostgresProvider(db, WithCleanser(DefaultCleanser()))
	table, err := p.Load(context.Background(), projected)
	require.NoError(t, err)
	assert.Equal(t, expectedRows(), tableRows(table))
}

func TestProviders_AgreeAndFeedTheEngine(t *testing.T) {
	db := testutil.NewTestDB().DB
	loadSQLFixture(t, db)
	csvProvider, err := NewCSVProvider(writeCSVFixture(t), WithCSVCleanser(DefaultCleanser()))
	require.NoError(t, err)

	providers := map[string]Provider{
		"sql": NewPostgresProvider(db, WithCleanser(DefaultCleanser())),
		"csv": csvProvider,
	}
	attrs := []string{"gender", "speed_category", "time_of_day", "road_user"}

	var encodings []*association.Encoding
	for name, p := range providers {
		table, err := p.Load(context.Background(), attrs)
		require.NoError(t, err, name)
		enc, err := association.Encode(table, attrs)
		require.NoError(t, err, name)
		encodings = append(encodings, enc)
	}
	assert.Equal(t, encodings[0].Vocabulary(), encodings[1].Vocabulary())
	assert.Equal(t, encodings[0].Matrix(), encodings[1].Matrix())
	assert.NotContains(t, encodings[0].Vocabulary(), association.Item("road_user=Other/-9"))
}

func TestProviders_WithoutCleanserKeepRawValues(t *testing.T) {
	p, err := NewCSVProvider(writeCSVFixture(t))
	require.NoError(t, err)

	table, err := p.Load(context.Background(), []string{"gender", "age"})
	require.NoError(t, err)
	require.Equal(t, 4, table.Len())
	assert.Equal(t, association.StringValue("Unknown"), table.Value(3, 0))
	assert.Equal(t, association.IntValue(-9), table.Value(3, 1))
}

func TestProviders_RejectUnknownAttributes(t *testing.T) {
	p := NewPostgresProvider(testutil.NewTestDB().DB)

	_, err := p.Load(context.Background(), []string{"gender", "weather"})
	assert.ErrorIs(t, err, association.ErrEncoding)

	_, err = p.Load(context.Background(), []string{"gender", "gender"})
	assert.ErrorIs(t, err, association.ErrEncoding)

	_, err = p.Load(context.Background(), nil)
	assert.ErrorIs(t, err, association.ErrEncoding)
}

func TestCSVProvider_MissingFile(t *testing.T) {
	p, err := NewCSVProvider(t.TempDir())
	require.NoError(t, err)

	_, err = p.Load(context.Background(), []string{"gender"})
	assert.Error(t, err)
}

func TestNewCSVProvider_Charset(t *testing.T) {
	_, err := NewCSVProvider(t.TempDir(), WithCharset("GBK"))
	assert.NoError(t, err)

	_, err = NewCSVProvider(t.TempDir(), WithCharset("latin-1"))
	assert.Error(t, err)
}

func TestPostgresProvider_QueryQuotesIdentifiers(t *testing.T) {
	p := NewPostgresProvider(nil, WithSchema("warehouse"))
	attrs, _, err := resolve([]string{"road_user", "speed_limit"})
	require.NoError(t, err)

	query := p.buildQuery(attrs)
	assert.True(t, strings.HasPrefix(query, `SELECT d0."road_user" AS "road_user", d4."speed_limit" AS "speed_limit" FROM "warehouse"."fact_person_fatality" f`))
	assert.Contains(t, query, `INNER JOIN "warehouse"."dim_time" d7 ON f."time_of_day_id" = d7."time_of_day_id"`)
	assert.Equal(t, len(Dimensions), strings.Count(query, "INNER JOIN"))
}
