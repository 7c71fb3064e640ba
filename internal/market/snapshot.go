package market

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MarketKey names the synthetic market-wide entry in rendered snapshots.
const MarketKey = "market"

// Field selects which quote value feeds the history ring.
type Field string

const (
	FieldChangePercent Field = "change_percent"
	FieldBuy           Field = "buy"
	FieldSell          Field = "sell"
)

// ParseField validates a configured field name.
func ParseField(name string) (Field, error) {
	switch f := Field(name); f {
	case FieldChangePercent, FieldBuy, FieldSell:
		return f, nil
	default:
		return "", fmt.Errorf("unknown sample field %q", name)
	}
}

// Quote holds one asset's rates from the user's trading perspective.
type Quote struct {
	Buy           decimal.Decimal `json:"buy"`
	Sell          decimal.Decimal `json:"sell"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	DayHigh       decimal.Decimal `json:"high"`
}

// Value returns the quote value selected by f.
func (q Quote) Value(f Field) decimal.Decimal {
	switch f {
	case FieldBuy:
		return q.Buy
	case FieldSell:
		return q.Sell
	default:
		return q.ChangePercent
	}
}

// Trend is the market-wide change reported by the source.
type Trend struct {
	ChangePercent decimal.Decimal `json:"changePercent"`
	Rising        bool            `json:"sign"`
}

// Snapshot is an immutable view of one successful fetch.
type Snapshot struct {
	fetchedAt time.Time
	assets    []string
	quotes    map[string]Quote
	market    Trend
}

// Empty returns a snapshot holding no data.
func Empty() *Snapshot {
	return &Snapshot{}
}

// NewSnapshot copies quotes into a new snapshot. Assets are ordered by order; quotes not
// named in order follow in lexical order.
func NewSnapshot(fetchedAt time.Time, trend Trend, quotes map[string]Quote, order []string) *Snapshot {
	if len(quotes) == 0 {
		return Empty()
	}

	copied := make(map[string]Quote, len(quotes))
	for k, v := range quotes {
		copied[k] = v
	}

	assets := make([]string, 0, len(copied))
	seen := make(map[string]bool, len(copied))
	for _, asset := range order {
		if _, ok := copied[asset]; ok && !seen[asset] {
			assets = append(assets, asset)
			seen[asset] = true
		}
	}
	var rest []string
	for asset := range copied {
		if !seen[asset] {
			rest = append(rest, asset)
		}
	}
	sort.Strings(rest)
	assets = append(assets, rest...)

	return &Snapshot{
		fetchedAt: fetchedAt,
		assets:    assets,
		quotes:    copied,
		market:    trend,
	}
}

// IsEmpty reports whether the snapshot carries no quotes.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.quotes) == 0
}

// FetchedAt is when the data was retrieved.
func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// Assets returns the asset keys in display order.
func (s *Snapshot) Assets() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.assets...)
}

// Quote looks up a single asset.
func (s *Snapshot) Quote(asset string) (Quote, bool) {
	if s == nil {
		return Quote{}, false
	}
	q, ok := s.quotes[asset]
	return q, ok
}

// Market returns the market-wide trend.
func (s *Snapshot) Market() Trend {
	if s == nil {
		return Trend{}
	}
	return s.market
}

// Equal compares two snapshots by value.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s.IsEmpty() || other.IsEmpty() {
		return s.IsEmpty() == other.IsEmpty()
	}
	if !s.fetchedAt.Equal(other.fetchedAt) || len(s.assets) != len(other.assets) {
		return false
	}
	if s.market.Rising != other.market.Rising || !s.market.ChangePercent.Equal(other.market.ChangePercent) {
		return false
	}
	for i, asset := range s.assets {
		if other.assets[i] != asset {
			return false
		}
		a, b := s.quotes[asset], other.quotes[asset]
		if !a.Buy.Equal(b.Buy) || !a.Sell.Equal(b.Sell) ||
			!a.ChangePercent.Equal(b.ChangePercent) || !a.DayHigh.Equal(b.DayHigh) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the snapshot as one object keyed by asset plus "market".
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.quotes)+1)
	if s.IsEmpty() {
		return json.Marshal(out)
	}
	for asset, q := range s.quotes {
		out[asset] = q
	}
	out[MarketKey] = s.market
	return json.Marshal(out)
}
