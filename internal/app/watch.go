package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"cryptalert/internal/market"
	"cryptalert/internal/service"
	"cryptalert/internal/tui"
)

// Watch polls the source and shows the terminal display without alerting.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := market.NewStore()
	loop := service.NewFetchLoop(a.newFetcher(), store, a.Config.Source.PingInterval, a.Logger)
	display := tui.NewDisplay(store, a.Stdout, a.Config.TUI.RefreshInterval, a.header(), a.Logger)

	svc := service.New(service.Options{
		FetchLoop: loop,
		Workers:   []service.Worker{display},
	}, a.Logger)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
