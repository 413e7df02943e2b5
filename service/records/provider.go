/*
 * @module service/records/provider
 * @description Record Provider contract plus the cell coercion shared by every provider
 * @architecture Data access layer - produces the rectangular table the mining engine consumes
 * @stateFlow raw cell -> cleanser -> typed association.Value (or explicit null)
 * @rules Providers return one row per person-level fatality; nulls are explicit, never sentinel strings
 * @dependencies github.com/spf13/cast
 * @refs catalogue.go, cleanser.go
 */

package records

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// Provider loads the selected attributes of every fatality record.
type Provider interface {
	Load(ctx context.Context, attributes []string) (association.Table, error)
}

// coerce converts a raw driver or CSV cell into a typed value.
func coerce(raw interface{}, typ association.ColumnType, cleanser *Cleanser) (association.Value, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil || cleanser.IsMissing(raw) {
		return association.Null(), nil
	}

	switch typ {
	case association.ColumnBool:
		b, err := toBool(raw)
		if err != nil {
			return association.Null(), err
		}
		return association.BoolValue(b), nil
	case association.ColumnInteger:
		i, err := toInt(raw)
		if err != nil {
			return association.Null(), err
		}
		return association.IntValue(i), nil
	default:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return association.Null(), err
		}
		return association.StringValue(s), nil
	}
}

// toBool accepts the spellings the ETL export has produced: true/false,
// 1/0 and Yes/No.
func toBool(raw interface{}) (bool, error) {
	if s, ok := raw.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
	}
	return cast.ToBoolE(raw)
}

// toInt accepts integral floats too, since CSV exports of nullable integer
// columns are written as "100.0".
func toInt(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case float32:
		return floatToInt(float64(v), raw)
	case float64:
		return floatToInt(v, raw)
	}
	if i, err := cast.ToInt64E(raw); err == nil {
		return i, nil
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, err
	}
	return floatToInt(f, raw)
}

func floatToInt(f float64, raw interface{}) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("records: %v is not an integer", raw)
	}
	// float64(math.MaxInt64) rounds up to 2^63, hence the strict upper bound
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("records: %v is out of int64 range", raw)
	}
	return int64(f), nil
}
