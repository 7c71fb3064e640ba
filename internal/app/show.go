package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"cryptalert/internal/storage"
)

// Show prints recent archived quotes or alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show archive")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlerts(ctx, store, opts.Limit)
	}

	samples, err := store.ListRecentQuotes(ctx, strings.ToLower(opts.Asset), opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(a.Stdout, "no quotes found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAsset\tBuy\tSell\tChange%\tDay high\tTrend")

	for _, sample := range samples {
		trend := ""
		if sample.Rising != nil {
			trend = "dropping"
			if *sample.Rising {
				trend = "rising"
			}
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sample.FetchedAt.UTC().Format(time.RFC3339),
			sample.Asset,
			formatNullDecimal(sample.Buy),
			formatNullDecimal(sample.Sell),
			formatDecimal(sample.ChangePercent, 3),
			formatNullDecimal(sample.DayHigh),
			trend,
		)
	}

	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tBatch\tAsset\tWindow\tChange%\tThreshold%\tMessage")
	for _, rec := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.BatchID.String()[:8],
			rec.Asset,
			rec.Window,
			formatDecimal(rec.ChangePercent, 3),
			formatDecimal(rec.ThresholdPct, 3),
			sanitizeInline(rec.Message),
		)
	}
	return writer.Flush()
}

func formatNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
