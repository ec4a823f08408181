package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered decimal string to a non-negative amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Thousands
// separators are not supported. Negative values, empty input and values too
// large for a float64 are rejected.
//
// Examples:
//   ParseAmount("2500")   -> 2500, nil
//   ParseAmount("12,5")   -> 12.5, nil
//   ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	v := d.Round(2).InexactFloat64()
	if !finite(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
