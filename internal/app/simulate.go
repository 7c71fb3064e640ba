package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptalert/internal/config"
	"cryptalert/internal/history"
	"cryptalert/internal/market"
	"cryptalert/internal/service"
	"cryptalert/internal/threshold"
)

// SimulateAlert feeds samples for one asset through the ring and comparator and
// delivers the resulting notification. Active hours are ignored.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	asset := strings.ToLower(strings.TrimSpace(opts.Asset))
	if !slices.Contains(config.SupportedCurrencies, asset) {
		return fmt.Errorf("unsupported asset %q", opts.Asset)
	}
	if len(opts.Samples) < history.Capacity {
		return fmt.Errorf("need at least %d samples, got %d", history.Capacity, len(opts.Samples))
	}

	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}
	engineOpts.Currencies = []string{asset}
	engineOpts.ActiveHours.Start, engineOpts.ActiveHours.End = 0, 0
	engineOpts.MaxSampleGap = 0
	engineOpts.LockKey = 0

	var notifierLabel string
	notifier := a.newNotifier(nil)
	if a.Config.Alerting.Telegram.Enabled {
		notifierLabel = "telegram"
	} else {
		notifierLabel = "log"
	}

	engine := service.NewAlertEngine(engineOpts, service.EngineDeps{
		Store:    market.NewStore(),
		Notifier: notifier,
	}, a.Logger)

	now := time.Now()
	start := now.Add(-time.Duration(len(opts.Samples)-1) * engineOpts.SampleInterval)
	for i, v := range opts.Samples {
		at := start.Add(time.Duration(i) * engineOpts.SampleInterval)
		engine.Sample(simulatedSnapshot(at, asset, v), at)
	}

	alerts := engine.Evaluate()
	if len(alerts) == 0 {
		newest := opts.Samples[len(opts.Samples)-1]
		window := opts.Samples[len(opts.Samples)-history.Capacity:]
		short := threshold.Compare(newest, window[history.Capacity-2], engineOpts.ShortThreshold)
		long := threshold.Compare(newest, window[0], engineOpts.LongThreshold)
		fmt.Fprintf(a.Stdout, "no threshold crossed for %s (short %s%%, long %s%%)\n",
			asset, threshold.FormatPercent(short.ChangePercent), threshold.FormatPercent(long.ChangePercent))
		return nil
	}

	if err := engine.Dispatch(ctx, now, alerts); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "alert for %s delivered via %s\n", asset, notifierLabel)
	return nil
}

// simulatedSnapshot carries v in every sampled field so any configured field sees it.
func simulatedSnapshot(at time.Time, asset string, v decimal.Decimal) *market.Snapshot {
	return market.NewSnapshot(at, market.Trend{}, map[string]market.Quote{
		asset: {Buy: v, Sell: v, ChangePercent: v, DayHigh: v},
	}, []string{asset})
}

// ParseSamples parses a comma separated list of sample values.
func ParseSamples(raw string) ([]decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("no samples given")
	}
	parts := strings.Split(raw, ",")
	values := make([]decimal.Decimal, 0, len(parts))
	for _, part := range parts {
		v, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid sample %q: %w", part, err)
		}
		values = append(values, v)
	}
	return values, nil
}
