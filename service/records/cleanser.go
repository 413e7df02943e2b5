/*
 * @module service/records/cleanser
 * @description Provider-boundary normalisation of sentinel values into explicit nulls
 * @architecture Data access layer - cleaning stage in front of the mining engine
 * @stateFlow raw cell -> textual form -> sentinel lookup -> missing / kept
 * @rules The mining engine never re-interprets sentinels; a nil Cleanser treats only nil as missing
 * @dependencies github.com/spf13/cast
 */

package records

import (
	"strings"

	"github.com/spf13/cast"
)

// DefaultSentinels are the placeholders the source extracts use for unknown values.
var DefaultSentinels = []string{"", "-9", "Unknown", "Other/-9", "nan", "NaN"}

// Cleanser turns configured sentinel values into nulls.
type Cleanser struct {
	sentinels map[string]struct{}
}

// NewCleanser creates a cleanser for the given sentinels. Matching is exact
// after trimming surrounding whitespace.
func NewCleanser(sentinels ...string) *Cleanser {
	c := &Cleanser{sentinels: make(map[string]struct{}, len(sentinels))}
	for _, s := range sentinels {
		c.sentinels[strings.TrimSpace(s)] = struct{}{}
	}
	return c
}

// DefaultCleanser uses DefaultSentinels.
func DefaultCleanser() *Cleanser {
	return NewCleanser(DefaultSentinels...)
}

// IsMissing reports whether raw is one of the sentinels.
func (c *Cleanser) IsMissing(raw interface{}) bool {
	if c == nil || raw == nil {
		return raw == nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return false
	}
	_, ok := c.sentinels[strings.TrimSpace(s)]
	return ok
}
