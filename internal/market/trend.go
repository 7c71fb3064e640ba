package market

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"cryptalert/internal/threshold"
)

// TrendTracker words the market trend relative to the previously rendered change.
type TrendTracker struct {
	mu   sync.Mutex
	prev *decimal.Decimal
}

// NewTrendTracker constructs a tracker with no previous value.
func NewTrendTracker() *TrendTracker {
	return &TrendTracker{}
}

// Status renders the market line and remembers the rounded change for the next call.
func (t *TrendTracker) Status(trend Trend) string {
	change := trend.ChangePercent.Round(threshold.Places)

	t.mu.Lock()
	prev := t.prev
	t.prev = &change
	t.mu.Unlock()

	polarity := "negative"
	if trend.Rising {
		polarity = "positive"
	}

	qualifier := ""
	if prev != nil {
		switch change.Cmp(*prev) {
		case -1:
			if trend.Rising {
				qualifier = ", but dropping"
			} else {
				qualifier = " and dropping"
			}
		case 1:
			if trend.Rising {
				qualifier = " and rising"
			} else {
				qualifier = ", but rising"
			}
		}
	}

	return fmt.Sprintf("Current market is %s%s!\nCurrent change is %s%%!", polarity, qualifier, threshold.FormatPercent(change))
}
