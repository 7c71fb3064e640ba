package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrSourceFailure means the payload carried success=false.
	ErrSourceFailure = errors.New("market: source reported failure")
	// ErrMissingField means a required key was absent from an otherwise valid payload.
	ErrMissingField = errors.New("market: missing field")
)

// SymbolSuffix is appended to a watched currency to form the source record key.
const SymbolSuffix = "eur"

type rawPayload struct {
	Success *bool                      `json:"success"`
	Payload map[string]json.RawMessage `json:"payload"`
}

type rawQuote struct {
	CurrencyCode string           `json:"currencyCode"`
	Buy          *decimal.Decimal `json:"buy"`
	Sell         *decimal.Decimal `json:"sell"`
	FChangeP     *decimal.Decimal `json:"fchangep"`
	FHigh        *decimal.Decimal `json:"fhigh"`
}

type rawMarket struct {
	ChangeAmount *decimal.Decimal `json:"changeAmount"`
	ChangeSign   *changeSign      `json:"changeSign"`
}

// changeSign accepts booleans, "+"/"-" strings and numbers.
type changeSign bool

func (c *changeSign) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*c = changeSign(x)
	case float64:
		*c = x != 0
	case string:
		switch strings.TrimSpace(x) {
		case "+":
			*c = true
		case "-", "":
			*c = false
		default:
			parsed, err := strconv.ParseBool(x)
			if err != nil {
				return fmt.Errorf("unrecognised change sign %q", x)
			}
			*c = changeSign(parsed)
		}
	default:
		return fmt.Errorf("unrecognised change sign %s", string(b))
	}
	return nil
}

// Parse converts a raw source payload into a snapshot holding the watched currencies.
// On any failure the returned snapshot is empty and the error says why.
func Parse(data []byte, watch []string, fetchedAt time.Time) (*Snapshot, error) {
	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return Empty(), fmt.Errorf("decode payload: %w", err)
	}
	if raw.Success == nil {
		return Empty(), fmt.Errorf("%w: success", ErrMissingField)
	}
	if !*raw.Success {
		return Empty(), ErrSourceFailure
	}
	if raw.Payload == nil {
		return Empty(), fmt.Errorf("%w: payload", ErrMissingField)
	}

	wanted := make(map[string]string, len(watch))
	for _, currency := range watch {
		wanted[strings.ToLower(currency)+SymbolSuffix] = strings.ToLower(currency)
	}

	quotes := make(map[string]Quote, len(wanted))
	for key, body := range raw.Payload {
		currency, ok := wanted[strings.ToLower(key)]
		if !ok {
			continue
		}
		q, err := parseQuote(key, body)
		if err != nil {
			return Empty(), err
		}
		quotes[currency] = q
	}

	for symbol, currency := range wanted {
		if _, ok := quotes[currency]; !ok {
			return Empty(), fmt.Errorf("%w: payload.%s", ErrMissingField, symbol)
		}
	}

	body, ok := raw.Payload[MarketKey]
	if !ok {
		return Empty(), fmt.Errorf("%w: payload.%s", ErrMissingField, MarketKey)
	}
	var m rawMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return Empty(), fmt.Errorf("decode market record: %w", err)
	}
	if m.ChangeAmount == nil {
		return Empty(), fmt.Errorf("%w: payload.market.changeAmount", ErrMissingField)
	}
	if m.ChangeSign == nil {
		return Empty(), fmt.Errorf("%w: payload.market.changeSign", ErrMissingField)
	}

	trend := Trend{ChangePercent: *m.ChangeAmount, Rising: bool(*m.ChangeSign)}
	return NewSnapshot(fetchedAt, trend, quotes, normalise(watch)), nil
}

func parseQuote(key string, body json.RawMessage) (Quote, error) {
	var r rawQuote
	if err := json.Unmarshal(body, &r); err != nil {
		return Quote{}, fmt.Errorf("decode record %s: %w", key, err)
	}

	fields := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"buy", r.Buy},
		{"sell", r.Sell},
		{"fchangep", r.FChangeP},
		{"fhigh", r.FHigh},
	}
	for _, f := range fields {
		if f.value == nil {
			return Quote{}, fmt.Errorf("%w: payload.%s.%s", ErrMissingField, key, f.name)
		}
	}

	// The source quotes from the exchange's side; swap to the user's side.
	return Quote{
		Buy:           *r.Sell,
		Sell:          *r.Buy,
		ChangePercent: *r.FChangeP,
		DayHigh:       *r.FHigh,
	}, nil
}

func normalise(watch []string) []string {
	out := make([]string, len(watch))
	for i, currency := range watch {
		out[i] = strings.ToLower(currency)
	}
	return out
}
