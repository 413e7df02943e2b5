package mining

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// WriteRulesCSV writes rules in rank order with the columns antecedents,
// consequents, support, confidence, lift (and variant when withVariant).
// Itemsets are written as "{a, b}"; metrics are rounded to three decimals.
func WriteRulesCSV(w io.Writer, rules []association.Rule, withVariant bool) error {
	cw := csv.NewWriter(w)
	header := []string{"antecedents", "consequents", "support", "confidence", "lift"}
	if withVariant {
		header = append(header, "variant")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("mining: write csv header: %w", err)
	}
	for _, r := range rules {
		row := []string{
			r.Antecedent.String(),
			r.Consequent.String(),
			round3(r.Support),
			round3(r.Confidence),
			round3(r.Lift),
		}
		if withVariant {
			row = append(row, r.Variant)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("mining: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func round3(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
