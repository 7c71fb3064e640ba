package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, bucket time.Time) error

// GateFunc blocks the first tick until it returns nil.
type GateFunc func(ctx context.Context) error

// ActiveHours is a local-time window [Start, End) in whole hours. The zero value is
// always active.
type ActiveHours struct {
	Start int
	End   int
}

// Contains reports whether t falls inside the window.
func (h ActiveHours) Contains(t time.Time) bool {
	if h.Start == 0 && h.End == 0 {
		return true
	}
	hour := t.Hour()
	return hour >= h.Start && hour < h.End
}

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration

	// ActiveHours mutes ticks outside the window; QuietInterval replaces Interval
	// while muted.
	ActiveHours   ActiveHours
	QuietInterval time.Duration
	Location      *time.Location
	// Clock reports wall time for the active-hours check. Defaults to time.Now.
	Clock func() time.Time

	Gate        GateFunc
	// TickOnStart runs one tick as soon as the gate opens instead of waiting a full interval.
	TickOnStart bool
}

// Scheduler drives aligned execution of sampling jobs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.QuietInterval <= 0 {
		opts.QuietInterval = opts.Interval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	name := opts.Name
	if name == "" {
		name = "scheduler"
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Str("job", name).Logger()}
}

// Active reports whether t is inside the configured active hours.
func (s *Scheduler) Active(t time.Time) bool {
	return s.opts.ActiveHours.Contains(t.In(s.opts.Location))
}

// Run blocks, invoking the tick function at each aligned interval until ctx is cancelled.
// Outside active hours the tick is skipped and the next attempt waits QuietInterval.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if err := s.awaitGate(ctx); err != nil {
		return err
	}

	if s.opts.TickOnStart && s.Active(s.opts.Clock()) {
		now := time.Now().UTC()
		if err := tick(ctx, s.bucketStart(now)); err != nil {
			s.logger.Error().Err(err).Msg("initial tick failed")
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		if !s.Active(s.opts.Clock()) {
			s.logger.Debug().Dur("retry_in", s.opts.QuietInterval).Msg("outside active hours, tick skipped")
			next = time.Now().UTC().Add(s.opts.QuietInterval)
			continue
		}

		bucket := s.bucketStart(next)
		s.logger.Debug().Time("bucket", bucket).Msg("executing scheduled tick")

		if err := tick(ctx, bucket); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) awaitGate(ctx context.Context) error {
	if s.opts.Gate == nil {
		return nil
	}
	for {
		err := s.opts.Gate(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.opts.Interval).Msg("start gate not open")
		if err := sleep(ctx, s.opts.Interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
