// Package numeric provides decimal helpers shared by trading-rule enforcement.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ScaleFromStep derives the effective fractional precision from a decimal "step" string.
func ScaleFromStep(step string) int {
	step = strings.TrimSpace(step)
	if step == "" {
		return 0
	}
	idx := strings.IndexByte(step, '.')
	if idx < 0 {
		return 0
	}
	frac := strings.TrimRight(step[idx+1:], "0")
	return len(frac)
}

// Quantize rounds value down to the nearest multiple of step.
// A non-positive step returns value unchanged.
func Quantize(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// ParseDecimal converts a decimal wire string into an exact decimal value.
// On failure it returns (zero, false); binary floats are never involved.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
