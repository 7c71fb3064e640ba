package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cryptalert/internal/alerting"
	"cryptalert/internal/market"
	"cryptalert/internal/scheduler"
)

// Worker is a long-running component that stops when ctx is cancelled.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context) error

// Run calls f.
func (f WorkerFunc) Run(ctx context.Context) error { return f(ctx) }

// Options wire the service. Engine, Sampler and Digester are nil when alerting is off.
type Options struct {
	FetchLoop       *FetchLoop
	Engine          *AlertEngine
	Sampler         *scheduler.Scheduler
	Digester        *scheduler.Scheduler
	SampleOnPublish bool
	Gate            scheduler.GateFunc
	Workers         []Worker
}

// Service orchestrates fetching, alerting, and the auxiliary workers under one context.
type Service struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs the monitoring service.
func New(opts Options, logger zerolog.Logger) *Service {
	return &Service{opts: opts, logger: logger.With().Str("component", "service").Logger()}
}

// StartGate waits for the first snapshot and then for the notifier to be ready.
func StartGate(store *market.Store, notifier alerting.Notifier) scheduler.GateFunc {
	return func(ctx context.Context) error {
		if err := store.WaitReady(ctx); err != nil {
			return err
		}
		if r, ok := notifier.(alerting.Readier); ok {
			return r.Ready(ctx)
		}
		return nil
	}
}

// Run blocks until ctx is cancelled or a worker fails.
func (s *Service) Run(ctx context.Context) error {
	if s.opts.FetchLoop == nil {
		return errors.New("fetch loop not configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.opts.FetchLoop.Run(ctx) })

	if s.opts.Engine != nil {
		engine := s.opts.Engine
		switch {
		case s.opts.SampleOnPublish:
			g.Go(func() error { return ignoreCanceled(engine.RunOnPublish(ctx, s.opts.Gate)) })
		case s.opts.Sampler != nil:
			g.Go(func() error { return ignoreCanceled(s.opts.Sampler.Run(ctx, engine.SampleTick)) })
		}
		if s.opts.Digester != nil {
			g.Go(func() error { return ignoreCanceled(s.opts.Digester.Run(ctx, engine.DigestTick)) })
		}
	}

	for _, w := range s.opts.Workers {
		w := w
		g.Go(func() error { return ignoreCanceled(w.Run(ctx)) })
	}

	s.logger.Info().Int("workers", len(s.opts.Workers)).Bool("alerting", s.opts.Engine != nil).Msg("service started")
	err := g.Wait()
	s.logger.Info().Msg("service stopped")
	return ignoreCanceled(err)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
