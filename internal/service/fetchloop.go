package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cryptalert/internal/fetcher"
	"cryptalert/internal/market"
)

// SnapshotSink receives every newly published snapshot.
type SnapshotSink interface {
	RecordSnapshot(ctx context.Context, snap *market.Snapshot) error
}

// FetchLoop polls the data source and publishes successful snapshots.
type FetchLoop struct {
	fetcher  fetcher.RatesFetcher
	store    *market.Store
	interval time.Duration
	sinks    []SnapshotSink
	logger   zerolog.Logger
}

// NewFetchLoop constructs a fetch loop. Nil sinks are ignored.
func NewFetchLoop(f fetcher.RatesFetcher, store *market.Store, interval time.Duration, logger zerolog.Logger, sinks ...SnapshotSink) *FetchLoop {
	if interval <= 0 {
		panic("fetch interval must be positive")
	}
	active := make([]SnapshotSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	return &FetchLoop{
		fetcher:  f,
		store:    store,
		interval: interval,
		sinks:    active,
		logger:   logger.With().Str("component", "fetch_loop").Logger(),
	}
}

// FetchOnce performs one fetch. On success the snapshot is published and handed to
// the sinks; on failure the store keeps its previous snapshot.
func (l *FetchLoop) FetchOnce(ctx context.Context) (*market.Snapshot, error) {
	snap, err := l.fetcher.FetchRates(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn().Err(err).Msg("fetch failed, keeping previous snapshot")
		}
		return snap, err
	}
	if snap.IsEmpty() {
		l.logger.Warn().Msg("fetch returned no data, keeping previous snapshot")
		return snap, nil
	}

	if l.store.Publish(snap) {
		l.logger.Debug().Time("fetched_at", snap.FetchedAt()).Msg("snapshot published")
	}

	for _, sink := range l.sinks {
		if err := sink.RecordSnapshot(ctx, snap); err != nil {
			l.logger.Error().Err(err).Msg("snapshot sink failed")
		}
	}
	return snap, nil
}

// Run fetches, then sleeps the fixed interval, until ctx is cancelled.
func (l *FetchLoop) Run(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.interval).Msg("fetch loop started")
	for {
		_, _ = l.FetchOnce(ctx)

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info().Msg("fetch loop stopped")
			return nil
		case <-timer.C:
		}
	}
}
