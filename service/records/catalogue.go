/*
 * @module service/records/catalogue
 * @description Column catalogue of the road-fatality star schema
 * @architecture Data access layer - schema metadata
 * @stateFlow attribute name -> owning table + column type -> join path from the fact table
 * @rules Only catalogued attributes may be projected; every dimension is inner-joined on its surrogate key
 * @dependencies service/association
 * @refs postgres_provider.go, csv_provider.go
 */

package records

import (
	"fmt"
	"sort"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// FactTable is the person-level fact table every load starts from.
const FactTable = "fact_person_fatality"

// Dimension is a dimension table joined to the fact table on Key.
type Dimension struct {
	Table string
	Key   string
}

// Dimensions are joined in this order; all joins are inner joins.
var Dimensions = []Dimension{
	{Table: "dim_person", Key: "person_id"},
	{Table: "dim_date", Key: "date_id"},
	{Table: "dim_holiday", Key: "holiday_id"},
	{Table: "dim_location", Key: "location_id"},
	{Table: "dim_road", Key: "road_id"},
	{Table: "dim_vehicle", Key: "vehicle_id"},
	{Table: "dim_crash_type", Key: "crash_type_id"},
	{Table: "dim_time", Key: "time_of_day_id"},
}

// Attribute is one minable column of the star schema.
type Attribute struct {
	Name  string
	Table string
	Type  association.ColumnType
}

var catalogue = map[string]Attribute{}

func register(table string, typ association.ColumnType, names ...string) {
	for _, name := range names {
		catalogue[name] = Attribute{Name: name, Table: table, Type: typ}
	}
}

func init() {
	register("dim_person", association.ColumnString, "age_group", "gender", "road_user")
	register("dim_person", association.ColumnInteger, "age")
	register("dim_date", association.ColumnString, "day_of_week_name", "day_type")
	register("dim_date", association.ColumnInteger, "year", "month", "quarter")
	register("dim_holiday", association.ColumnBool, "christmas_period", "easter_period")
	register("dim_location", association.ColumnString, "state", "lga_name", "sa4_name", "remoteness_area")
	register("dim_location", association.ColumnInteger, "population_2023_lga", "population_2023_remoteness", "dwelling_records")
	register("dim_road", association.ColumnString, "road_type", "speed_category")
	register("dim_road", association.ColumnInteger, "speed_limit")
	register("dim_vehicle", association.ColumnString, "bus_involvement", "heavy_rigid_truck_involvement", "articulated_truck_involvement")
	register("dim_crash_type", association.ColumnString, "crash_type")
	register("dim_time", association.ColumnString, "time_of_day")
}

// LookupAttribute returns the catalogue entry for name.
func LookupAttribute(name string) (Attribute, bool) {
	a, ok := catalogue[name]
	return a, ok
}

// AttributeNames lists every catalogued attribute, sorted.
func AttributeNames() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve checks attributes against the catalogue and returns the projected
// schema in request order. Unknown or repeated names are encoding errors, so
// they surface exactly like a missing column in the mining engine.
func resolve(attributes []string) ([]Attribute, association.Schema, error) {
	if len(attributes) == 0 {
		return nil, association.Schema{}, &association.EncodingError{Reason: "no attributes selected"}
	}
	attrs := make([]Attribute, 0, len(attributes))
	cols := make([]association.Column, 0, len(attributes))
	seen := make(map[string]struct{}, len(attributes))
	for _, name := range attributes {
		a, ok := catalogue[name]
		if !ok {
			return nil, association.Schema{}, &association.EncodingError{Attribute: name, Reason: "not part of the star schema"}
		}
		if _, dup := seen[name]; dup {
			return nil, association.Schema{}, &association.EncodingError{Attribute: name, Reason: "selected twice"}
		}
		seen[name] = struct{}{}
		attrs = append(attrs, a)
		cols = append(cols, association.Column{Name: a.Name, Type: a.Type})
	}
	schema, err := association.NewSchema(cols...)
	if err != nil {
		return nil, association.Schema{}, fmt.Errorf("records: build schema: %w", err)
	}
	return attrs, schema, nil
}
