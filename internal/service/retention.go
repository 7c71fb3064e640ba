package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Pruner is satisfied by archives that support retention.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (quotes, alerts int64, err error)
}

// RetentionJob periodically deletes archived rows older than the retention window.
type RetentionJob struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
	clock     func() time.Time
	logger    zerolog.Logger
}

// NewRetentionJob constructs a retention job that runs every interval.
func NewRetentionJob(p Pruner, retention, interval time.Duration, logger zerolog.Logger) *RetentionJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionJob{
		pruner:    p,
		retention: retention,
		interval:  interval,
		clock:     time.Now,
		logger:    logger.With().Str("component", "retention").Logger(),
	}
}

// PruneOnce applies the retention window once.
func (j *RetentionJob) PruneOnce(ctx context.Context) error {
	cutoff := j.clock().Add(-j.retention)
	quotes, alerts, err := j.pruner.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	j.logger.Info().
		Time("cutoff", cutoff).
		Int64("quotes_deleted", quotes).
		Int64("alerts_deleted", alerts).
		Msg("archive pruned")
	return nil
}

// Run prunes immediately and then on every interval until ctx is cancelled.
func (j *RetentionJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		if err := j.PruneOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error().Err(err).Msg("archive prune failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
