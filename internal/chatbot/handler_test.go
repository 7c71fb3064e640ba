package chatbot

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"cryptalert/internal/market"
)

var started = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newHandler(now time.Time) *Handler {
	return &Handler{
		Name:    "cryptalert",
		Version: "1.2.3",
		Store:   market.NewStore(),
		Trend:   market.NewTrendTracker(),
		Started: started,
		Clock:   func() time.Time { return now },
	}
}

func publish(h *Handler, change string, rising bool) {
	h.Store.Publish(market.NewSnapshot(started, market.Trend{ChangePercent: decimal.RequireFromString(change), Rising: rising},
		map[string]market.Quote{
			"btc": {Buy: decimal.NewFromInt(40500), Sell: decimal.NewFromInt(41000), ChangePercent: decimal.RequireFromString("1.25"), DayHigh: decimal.NewFromInt(41500)},
		}, []string{"btc"}))
}

func TestReplySimpleCommands(t *testing.T) {
	h := newHandler(started.Add(26*time.Hour + 3*time.Minute + 4*time.Second))

	cases := map[string]string{
		"ping":    "Pong!",
		"version": "Bot version: 1.2.3",
		"uptime":  "Bot uptime: 1 days 2 hours 3 minutes 4 seconds",
	}
	for cmd, want := range cases {
		got, ok := h.Reply(cmd)
		if !ok || got != want {
			t.Fatalf("%s: expected %q, got %q (ok=%v)", cmd, want, got, ok)
		}
	}
}

func TestReplyUnknownCommand(t *testing.T) {
	if _, ok := newHandler(started).Reply("moon"); ok {
		t.Fatal("unknown command should not be handled")
	}
}

func TestReplyWithoutData(t *testing.T) {
	h := newHandler(started)
	for _, cmd := range []string{"rates", "market", "update"} {
		got, ok := h.Reply(cmd)
		if !ok || got != noData {
			t.Fatalf("%s: expected no-data reply, got %q", cmd, got)
		}
	}
}

func TestReplyRates(t *testing.T) {
	h := newHandler(started)
	publish(h, "2.5", true)

	got, _ := h.Reply("rates")
	body, found := strings.CutPrefix(got, "Current rates:\n")
	if !found {
		t.Fatalf("missing header: %q", got)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("rates body is not JSON: %v", err)
	}
	if _, ok := decoded["btc"]; !ok {
		t.Fatal("btc missing from rates")
	}
	if _, ok := decoded[market.MarketKey]; !ok {
		t.Fatal("market missing from rates")
	}
}

func TestReplyMarketTracksTrend(t *testing.T) {
	h := newHandler(started)
	publish(h, "2.5", true)

	first, _ := h.Reply("market")
	if first != "Current market is positive!\nCurrent change is 2.5%!" {
		t.Fatalf("unexpected first status %q", first)
	}

	publish(h, "3", true)
	second, _ := h.Reply("status")
	if second != "Current market is positive and rising!\nCurrent change is 3.0%!" {
		t.Fatalf("unexpected second status %q", second)
	}
}

func TestReplyUpdate(t *testing.T) {
	h := newHandler(started)
	publish(h, "1.5", false)

	got, _ := h.Reply("update")
	for _, want := range []string{
		"Current market status!",
		"Current market is negative!",
		"btc  Buy: 40500  Sell: 41000  %: 1.25",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("update missing %q:\n%s", want, got)
		}
	}
}

func TestAnnouncements(t *testing.T) {
	h := newHandler(started)
	if h.OnlineMessage() != "cryptalert is online!" || h.OfflineMessage() != "cryptalert is going offline!" {
		t.Fatalf("unexpected announcements %q / %q", h.OnlineMessage(), h.OfflineMessage())
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	parts := splitMessage(text, 8)
	if len(parts) != 2 || parts[0] != "aaaaaa\n" || parts[1] != "bbbbbb" {
		t.Fatalf("unexpected split %q", parts)
	}
	if got := splitMessage("short", 8); len(got) != 1 {
		t.Fatalf("short text should not split: %q", got)
	}
	long := splitMessage(strings.Repeat("x", 20), 8)
	if len(long) != 3 || long[2] != "xxxx" {
		t.Fatalf("unexpected hard split %q", long)
	}
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	// Each "€" is three bytes; a limit of 8 falls inside the third one.
	text := strings.Repeat("€", 5)
	parts := splitMessage(text, 8)
	if strings.Join(parts, "") != text {
		t.Fatalf("split lost bytes: %q", parts)
	}
	for _, part := range parts {
		if len(part) > 8 {
			t.Fatalf("part %q exceeds limit", part)
		}
		if !utf8.ValidString(part) {
			t.Fatalf("part %q is not valid UTF-8", part)
		}
	}
	if len(parts) != 3 || parts[0] != "€€" {
		t.Fatalf("unexpected split %q", parts)
	}
}
