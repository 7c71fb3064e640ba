package market

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const samplePayload = `{
	"success": true,
	"payload": {
		"BTCEUR": {"currencyCode": "BTC", "buy": "41000.5", "sell": 40500.25, "fchangep": "1.25", "fhigh": "41500"},
		"ethEur": {"currencyCode": "ETH", "buy": 2500, "sell": 2450, "fchangep": -0.5, "fhigh": 2600},
		"LTCEUR": {"currencyCode": "LTC", "buy": 90, "sell": 88, "fchangep": 0.1, "fhigh": 95},
		"market": {"changeAmount": "2.3456", "changeSign": "+"}
	}
}`

var fetchedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseFiltersAndInverts(t *testing.T) {
	snap, err := Parse([]byte(samplePayload), []string{"btc", "ETH"}, fetchedAt)
	if err != nil {
		t.Fatalf("parse should succeed: %v", err)
	}

	assets := snap.Assets()
	if len(assets) != 2 || assets[0] != "btc" || assets[1] != "eth" {
		t.Fatalf("unexpected assets %v", assets)
	}
	if _, ok := snap.Quote("ltc"); ok {
		t.Fatal("unwatched currency must be filtered out")
	}

	btc, _ := snap.Quote("btc")
	if !btc.Buy.Equal(decimal.RequireFromString("40500.25")) {
		t.Fatalf("buy should come from the source sell field, got %s", btc.Buy)
	}
	if !btc.Sell.Equal(decimal.RequireFromString("41000.5")) {
		t.Fatalf("sell should come from the source buy field, got %s", btc.Sell)
	}
	if !btc.ChangePercent.Equal(decimal.RequireFromString("1.25")) || !btc.DayHigh.Equal(decimal.NewFromInt(41500)) {
		t.Fatalf("unexpected btc quote %+v", btc)
	}

	trend := snap.Market()
	if !trend.Rising || !trend.ChangePercent.Equal(decimal.RequireFromString("2.3456")) {
		t.Fatalf("unexpected market trend %+v", trend)
	}
	if !snap.FetchedAt().Equal(fetchedAt) {
		t.Fatalf("fetched at = %s", snap.FetchedAt())
	}
}

func TestParseIsIdempotent(t *testing.T) {
	watch := []string{"btc", "eth"}
	first, err := Parse([]byte(samplePayload), watch, fetchedAt)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	second, err := Parse([]byte(samplePayload), watch, fetchedAt)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if !first.Equal(second) {
		t.Fatal("parsing identical input twice should give identical snapshots")
	}
}

func TestParseSourceFailure(t *testing.T) {
	snap, err := Parse([]byte(`{"success": false, "payload": {}}`), []string{"btc"}, fetchedAt)
	if !errors.Is(err, ErrSourceFailure) {
		t.Fatalf("expected ErrSourceFailure, got %v", err)
	}
	if !snap.IsEmpty() {
		t.Fatal("failed payload must yield an empty snapshot")
	}
}

func TestParseMissingFields(t *testing.T) {
	cases := map[string]string{
		"no success":  `{"payload": {}}`,
		"no payload":  `{"success": true}`,
		"no currency": `{"success": true, "payload": {"market": {"changeAmount": 1, "changeSign": true}}}`,
		"no market":   `{"success": true, "payload": {"BTCEUR": {"buy": 1, "sell": 1, "fchangep": 1, "fhigh": 1}}}`,
		"no fhigh":    `{"success": true, "payload": {"BTCEUR": {"buy": 1, "sell": 1, "fchangep": 1}, "market": {"changeAmount": 1, "changeSign": true}}}`,
		"null buy":    `{"success": true, "payload": {"BTCEUR": {"buy": null, "sell": 1, "fchangep": 1, "fhigh": 1}, "market": {"changeAmount": 1, "changeSign": true}}}`,
		"no sign":     `{"success": true, "payload": {"BTCEUR": {"buy": 1, "sell": 1, "fchangep": 1, "fhigh": 1}, "market": {"changeAmount": 1}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			snap, err := Parse([]byte(body), []string{"btc"}, fetchedAt)
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
			if !snap.IsEmpty() {
				t.Fatal("snapshot should be empty")
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	snap, err := Parse([]byte(`<html>bad gateway</html>`), []string{"btc"}, fetchedAt)
	if err == nil {
		t.Fatal("malformed payload should error")
	}
	if !snap.IsEmpty() {
		t.Fatal("snapshot should be empty")
	}
}

func TestChangeSignVariants(t *testing.T) {
	cases := map[string]bool{
		`true`:    true,
		`false`:   false,
		`"+"`:     true,
		`"-"`:     false,
		`1`:       true,
		`0`:       false,
		`"true"`:  true,
		`"false"`: false,
	}
	for raw, want := range cases {
		var s changeSign
		if err := s.UnmarshalJSON([]byte(raw)); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if bool(s) != want {
			t.Fatalf("%s: got %v want %v", raw, s, want)
		}
	}

	var s changeSign
	if err := s.UnmarshalJSON([]byte(`"up"`)); err == nil {
		t.Fatal("unknown sign text should error")
	}
}

func TestParseField(t *testing.T) {
	if f, err := ParseField("buy"); err != nil || f != FieldBuy {
		t.Fatalf("buy: %v %v", f, err)
	}
	if _, err := ParseField("volume"); err == nil {
		t.Fatal("unknown field should error")
	}
}
