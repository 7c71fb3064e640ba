package alerting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptalert/internal/market"
)

func TestRenderAlertBothWindows(t *testing.T) {
	got := Render(sampleAlert())
	want := "Short term update!\n" +
		"btc: Value raised by 5.0% in the past 15 sec!\n" +
		"btc: Value raised by 5.0% in the past minute!"
	if got != want {
		t.Fatalf("unexpected render:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderAlertSingleWindow(t *testing.T) {
	note := sampleAlert()
	note.Alerts[0].Long.Triggered = false
	got := Render(note)
	want := "Short term update!\nbtc: Value raised by 5.0% in the past 15 sec!"
	if got != want {
		t.Fatalf("unexpected render:\n%s", got)
	}
}

func TestRenderDigest(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), market.Trend{ChangePercent: decimal.NewFromInt(1), Rising: true},
		map[string]market.Quote{
			"eth": {Buy: decimal.NewFromInt(2450), Sell: decimal.NewFromInt(2500), ChangePercent: decimal.RequireFromString("-0.5")},
			"btc": {Buy: decimal.NewFromInt(40500), Sell: decimal.NewFromInt(41000), ChangePercent: decimal.RequireFromString("1.25")},
		}, []string{"btc", "eth"})

	note := NewDigestNotification(time.Now(), "", NewDigest("Current market is positive!\nCurrent change is 1.0%!", snap))
	got := Render(note)
	want := "Status update!\n" +
		"Current market is positive!\nCurrent change is 1.0%!\n" +
		"btc  Buy: 40500  Sell: 41000  %: 1.25\n" +
		"eth  Buy: 2450  Sell: 2500  %: -0.5"
	if got != want {
		t.Fatalf("unexpected render:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderStatus(t *testing.T) {
	if got := Render(NewStatusNotification(time.Now(), "cryptalert is online!")); got != "cryptalert is online!" {
		t.Fatalf("unexpected render %q", got)
	}
}

func TestWindowLabel(t *testing.T) {
	cases := map[time.Duration]string{
		15 * time.Second:        "15 sec",
		1500 * time.Millisecond: "1.5 sec",
		time.Minute:             "minute",
		5 * time.Minute:         "5 min",
		time.Hour:               "hour",
		2 * time.Hour:           "2 hours",
	}
	for d, want := range cases {
		if got := WindowLabel(d); got != want {
			t.Fatalf("%s: expected %q, got %q", d, want, got)
		}
	}
}
