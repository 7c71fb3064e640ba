package tui

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"cryptalert/internal/market"
	"cryptalert/internal/threshold"
)

const clearScreen = "\033[H\033[2J"

// MarketLine words the market trend for the display.
func MarketLine(trend market.Trend) string {
	change := threshold.FormatPercent(trend.ChangePercent.Abs())
	if trend.Rising {
		return fmt.Sprintf("Current market is rising! Current change is +%s%%!", change)
	}
	return fmt.Sprintf("Current market is dropping! Current change is -%s%%!", change)
}

// Render writes the snapshot as a table: header, market line, then one row per asset.
func Render(w io.Writer, header string, snap *market.Snapshot, now time.Time) error {
	if header != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", header); err != nil {
			return err
		}
	}
	if snap.IsEmpty() {
		_, err := fmt.Fprintln(w, "Waiting for market data...")
		return err
	}

	fmt.Fprintln(w, MarketLine(snap.Market()))
	fmt.Fprintf(w, "Last update: %s (%s ago)\n\n",
		snap.FetchedAt().Local().Format("15:04:05"),
		now.Sub(snap.FetchedAt()).Truncate(time.Second))

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Asset\tBuy\tSell\tChange%\tDay high")
	for _, asset := range snap.Assets() {
		q, _ := snap.Quote(asset)
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			asset,
			q.Buy.String(),
			q.Sell.String(),
			q.ChangePercent.String(),
			q.DayHigh.String(),
		)
	}
	return writer.Flush()
}

// Display redraws the current snapshot on an interval.
type Display struct {
	store   *market.Store
	out     io.Writer
	refresh time.Duration
	header  string
	logger  zerolog.Logger
}

// NewDisplay constructs a terminal display writing to out.
func NewDisplay(store *market.Store, out io.Writer, refresh time.Duration, header string, logger zerolog.Logger) *Display {
	if refresh <= 0 {
		refresh = time.Second
	}
	return &Display{
		store:   store,
		out:     out,
		refresh: refresh,
		header:  header,
		logger:  logger.With().Str("component", "tui").Logger(),
	}
}

// Draw clears the screen and renders once.
func (d *Display) Draw() error {
	if _, err := io.WriteString(d.out, clearScreen); err != nil {
		return err
	}
	return Render(d.out, d.header, d.store.Current(), time.Now())
}

// Run redraws until ctx is cancelled.
func (d *Display) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.refresh)
	defer ticker.Stop()

	updates, cancel := d.store.Subscribe()
	defer cancel()

	for {
		if err := d.Draw(); err != nil {
			d.logger.Error().Err(err).Msg("draw failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-updates:
		}
	}
}
