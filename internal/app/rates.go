package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Rates fetches the current rates once and prints them as JSON.
func (a *App) Rates(ctx context.Context, opts RatesOptions) error {
	if opts.FromMirror {
		return a.mirroredRates(ctx)
	}

	snap, err := a.newFetcher().FetchRates(ctx)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}

	b, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.Stdout, "%s\n", b)
	return err
}

func (a *App) mirroredRates(ctx context.Context) error {
	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return err
	}
	if mirror == nil {
		return errors.New("redis not configured; cannot read mirrored rates")
	}
	defer closeMirror()

	raw, err := mirror.Latest(ctx)
	if err != nil {
		return err
	}
	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return fmt.Errorf("decode mirrored snapshot: %w", err)
	}
	b, err := json.MarshalIndent(pretty, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.Stdout, "%s\n", b)
	return err
}
