package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Prune deletes archived quotes and alerts older than the retention window.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	olderThan := opts.OlderThan
	if olderThan <= 0 {
		olderThan = a.Config.Database.Retention
	}
	if olderThan <= 0 {
		return errors.New("retention window must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; nothing to prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	if opts.DryRun {
		total, err := store.CountQuotes(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "dry-run: would delete rows older than %s (%d quotes archived in total)\n", cutoff.Format(time.RFC3339), total)
		return nil
	}

	quotes, alerts, err := store.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	a.Logger.Info().Time("cutoff", cutoff).Int64("quotes", quotes).Int64("alerts", alerts).Msg("prune complete")
	fmt.Fprintf(a.Stdout, "deleted %d quotes and %d alerts older than %s\n", quotes, alerts, cutoff.Format(time.RFC3339))
	return nil
}
