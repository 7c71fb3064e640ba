package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptalert/internal/config"
	"cryptalert/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "cryptalert", Environment: "test"},
		Source: config.SourceConfig{
			APIAddress:   "http://localhost",
			Currencies:   []string{"btc", "eth"},
			PingInterval: 5 * time.Second,
		},
		Alerting: config.AlertingConfig{
			Enabled:           true,
			ShortThresholdPct: 5,
			LongThresholdPct:  10,
			SampleInterval:    15 * time.Second,
			SampleField:       "change_percent",
			ActiveHours:       config.ActiveHoursConfig{Start: 7, End: 23},
			Timezone:          "UTC",
		},
		Export: config.ExportConfig{MaxDataPoints: 100},
	}
}

func newTestApp(cfg *config.Config) (*App, *bytes.Buffer, *bytes.Buffer) {
	var stdout, logs bytes.Buffer
	a := NewApp(cfg, zerolog.New(&logs))
	a.Stdout = &stdout
	return a, &stdout, &logs
}

func TestResolveOutputs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		want    outputs
		wantErr error
	}{
		{
			name:    "nothing enabled",
			mutate:  func(c *config.Config) {},
			wantErr: ErrNoOutput,
		},
		{
			name: "telegram only",
			mutate: func(c *config.Config) {
				c.Alerting.Telegram.Enabled = true
			},
			want: outputs{telegram: true, alerting: true},
		},
		{
			name: "telegram ignored when alerting off",
			mutate: func(c *config.Config) {
				c.Alerting.Enabled = false
				c.Alerting.Telegram.Enabled = true
			},
			wantErr: ErrNoOutput,
		},
		{
			name: "bot without token",
			mutate: func(c *config.Config) {
				c.Bot.Enabled = true
			},
			wantErr: ErrMissingBotToken,
		},
		{
			name: "bot without token falls back to tui",
			mutate: func(c *config.Config) {
				c.Bot.Enabled = true
				c.TUI.Enabled = true
			},
			want: outputs{tui: true, alerting: true},
		},
		{
			name: "bot with token",
			mutate: func(c *config.Config) {
				c.Bot.Enabled = true
				c.Bot.Token = "123:abc"
			},
			want: outputs{bot: true, alerting: true},
		},
		{
			name: "bot with info chat delivers alerts",
			mutate: func(c *config.Config) {
				c.Bot.Enabled = true
				c.Bot.Token = "123:abc"
				c.Bot.InfoChatID = -100123
			},
			want: outputs{bot: true, infoChat: true, alerting: true},
		},
		{
			name: "display without alerting",
			mutate: func(c *config.Config) {
				c.Alerting.Enabled = false
				c.TUI.Enabled = true
			},
			want: outputs{tui: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			a, _, _ := newTestApp(cfg)

			got, err := a.resolveOutputs()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestResolveOutputsTelegramOnlyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
source:
  api_address: http://localhost/rates
alerting:
  telegram:
    enabled: true
    bot_token: "123:abc"
    chat_id: "42"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	a, _, _ := newTestApp(cfg)
	got, err := a.resolveOutputs()
	if err != nil {
		t.Fatalf("telegram alone should be a valid output: %v", err)
	}
	if !got.telegram || !got.alerting {
		t.Fatalf("expected telegram alerting, got %+v", got)
	}
}

func TestSimulateAlertDelivers(t *testing.T) {
	a, stdout, logs := newTestApp(testConfig())
	samples, err := ParseSamples("1, 1, 1, 1.5")
	if err != nil {
		t.Fatalf("parse samples: %v", err)
	}

	if err := a.SimulateAlert(context.Background(), SimulateOptions{Asset: "BTC", Samples: samples}); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if !strings.Contains(stdout.String(), "alert for btc delivered via log") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if !strings.Contains(logs.String(), "btc: Value raised by 50.0% in the past 15 sec!") {
		t.Fatalf("rendered alert missing from log: %s", logs.String())
	}
}

func TestSimulateAlertBelowThreshold(t *testing.T) {
	a, stdout, _ := newTestApp(testConfig())
	samples := []decimal.Decimal{
		decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(101), decimal.NewFromInt(102),
	}

	if err := a.SimulateAlert(context.Background(), SimulateOptions{Asset: "eth", Samples: samples}); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	want := "no threshold crossed for eth (short 0.99%, long 2.0%)"
	if !strings.Contains(stdout.String(), want) {
		t.Fatalf("expected %q, got %q", want, stdout.String())
	}
}

func TestSimulateAlertValidation(t *testing.T) {
	a, _, _ := newTestApp(testConfig())
	ctx := context.Background()

	if err := a.SimulateAlert(ctx, SimulateOptions{Asset: "doge", Samples: make([]decimal.Decimal, 4)}); err == nil {
		t.Fatal("expected unsupported asset error")
	}
	if err := a.SimulateAlert(ctx, SimulateOptions{Asset: "btc", Samples: make([]decimal.Decimal, 3)}); err == nil {
		t.Fatal("expected error for too few samples")
	}
}

func TestParseSamples(t *testing.T) {
	if _, err := ParseSamples(""); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := ParseSamples("1,abc"); err == nil {
		t.Fatal("expected error for invalid value")
	}
	got, err := ParseSamples("1.25,-0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || !got[1].Equal(decimal.RequireFromString("-0.5")) {
		t.Fatalf("unexpected values %v", got)
	}
}

func TestDownsampleSamplesKeepsEnds(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]storage.QuoteSample, 10)
	for i := range samples {
		samples[i] = storage.QuoteSample{FetchedAt: base.Add(time.Duration(i) * time.Minute), Asset: "btc"}
	}

	got := downsampleSamples(samples, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	if !got[0].FetchedAt.Equal(samples[0].FetchedAt) || !got[3].FetchedAt.Equal(samples[9].FetchedAt) {
		t.Fatalf("expected first and last samples to be kept")
	}
	if len(downsampleSamples(samples, 0)) != 10 {
		t.Fatal("zero limit should keep every sample")
	}
}

func TestWriteSamplesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "btc.csv")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []storage.QuoteSample{{
		FetchedAt:     at,
		Asset:         "btc",
		Buy:           decimal.NewNullDecimal(decimal.RequireFromString("60000.5")),
		Sell:          decimal.NewNullDecimal(decimal.RequireFromString("59800")),
		ChangePercent: decimal.RequireFromString("1.25"),
	}}

	if err := writeSamplesCSV(path, samples); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	want := []string{"2024-03-01T12:00:00Z", "btc", "60000.5", "59800", "1.25", ""}
	for i, v := range want {
		if rows[1][i] != v {
			t.Fatalf("column %d: expected %q, got %q", i, v, rows[1][i])
		}
	}
}

func TestExportRequiresOutput(t *testing.T) {
	a, _, _ := newTestApp(testConfig())
	if err := a.Export(context.Background(), ExportOptions{Asset: "btc"}); err == nil {
		t.Fatal("expected error without --csv or --png")
	}
}

func TestArchiveCommandsRequireDatabase(t *testing.T) {
	a, _, _ := newTestApp(testConfig())
	ctx := context.Background()

	if err := a.Show(ctx, ShowOptions{Limit: 5, Asset: "btc"}); err == nil {
		t.Fatal("show: expected error without database")
	}
	if err := a.Prune(ctx, PruneOptions{OlderThan: time.Hour}); err == nil {
		t.Fatal("prune: expected error without database")
	}
	if err := a.Export(ctx, ExportOptions{Asset: "btc", CSVPath: filepath.Join(t.TempDir(), "x.csv")}); err == nil {
		t.Fatal("export: expected error without database")
	}
}

func TestRatesFromMirrorRequiresRedis(t *testing.T) {
	a, _, _ := newTestApp(testConfig())
	if err := a.Rates(context.Background(), RatesOptions{FromMirror: true}); err == nil {
		t.Fatal("expected error without redis")
	}
}
