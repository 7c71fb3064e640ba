package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptalert/internal/market"
)

// QuoteSample is one archived row: an asset quote or the market trend at a fetch time.
// Market rows carry only ChangePercent and Rising.
type QuoteSample struct {
	FetchedAt     time.Time
	Asset         string
	Buy           decimal.NullDecimal
	Sell          decimal.NullDecimal
	ChangePercent decimal.Decimal
	DayHigh       decimal.NullDecimal
	Rising        *bool
	CreatedAt     time.Time
}

// AlertRecord audits one triggered window comparison.
type AlertRecord struct {
	ID            int64
	BatchID       uuid.UUID
	Asset         string
	Window        string
	ChangePercent decimal.Decimal
	ThresholdPct  decimal.Decimal
	Message       string
	CreatedAt     time.Time
}

// Window names used in alert records.
const (
	WindowShort = "short"
	WindowLong  = "long"
)

// SamplesFromSnapshot flattens a snapshot into archive rows in display order, market last.
func SamplesFromSnapshot(snap *market.Snapshot) []QuoteSample {
	if snap.IsEmpty() {
		return nil
	}
	at := snap.FetchedAt()
	assets := snap.Assets()
	samples := make([]QuoteSample, 0, len(assets)+1)
	for _, asset := range assets {
		q, _ := snap.Quote(asset)
		samples = append(samples, QuoteSample{
			FetchedAt:     at,
			Asset:         asset,
			Buy:           decimal.NewNullDecimal(q.Buy),
			Sell:          decimal.NewNullDecimal(q.Sell),
			ChangePercent: q.ChangePercent,
			DayHigh:       decimal.NewNullDecimal(q.DayHigh),
		})
	}
	trend := snap.Market()
	rising := trend.Rising
	samples = append(samples, QuoteSample{
		FetchedAt:     at,
		Asset:         market.MarketKey,
		ChangePercent: trend.ChangePercent,
		Rising:        &rising,
	})
	return samples
}
