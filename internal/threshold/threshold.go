package threshold

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept in change percentages.
const Places = 3

var hundred = decimal.NewFromInt(100)

// Result classifies one window comparison.
type Result struct {
	Triggered     bool
	Message       string
	ChangePercent decimal.Decimal
}

// Compare computes the percentage change from oldValue to newValue and reports whether it
// reaches thresholdPct in either direction. Messages state the magnitude; the sign is kept in
// ChangePercent. The threshold is checked against the unrounded change; rounding applies to
// the reported value only. A zero reference value never triggers.
func Compare(newValue, oldValue, thresholdPct decimal.Decimal) Result {
	if oldValue.IsZero() {
		return Result{}
	}

	raw := newValue.Sub(oldValue).Div(oldValue).Mul(hundred)
	change := raw.Round(Places)

	switch {
	case raw.GreaterThanOrEqual(thresholdPct):
		return Result{
			Triggered:     true,
			Message:       fmt.Sprintf("Value raised by %s%%", FormatPercent(change)),
			ChangePercent: change,
		}
	case raw.LessThanOrEqual(thresholdPct.Neg()):
		return Result{
			Triggered:     true,
			Message:       fmt.Sprintf("Value dropped by %s%%", FormatPercent(change.Abs())),
			ChangePercent: change,
		}
	default:
		return Result{ChangePercent: change}
	}
}

// FormatPercent renders d rounded half away from zero to Places digits, always keeping at
// least one fractional digit ("5.0", "-1.25").
func FormatPercent(d decimal.Decimal) string {
	s := d.Round(Places).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
