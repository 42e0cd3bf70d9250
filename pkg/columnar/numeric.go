package columnar

import (
	"math"
	"strconv"
	"strings"
)

// CoerceFloat parses s as a float64, returning NaN for anything that does
// not parse cleanly (mirrors pandas.to_numeric(errors="coerce")).
func CoerceFloat(s string) float64 {
	return coerceFloat(s)
}

func coerceFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// IsNull reports whether a coerced float value represents a missing/null
// entry (NaN).
func IsNull(v float64) bool { return math.IsNaN(v) }
