package alerting

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned when the queue cannot accept another notification.
var ErrQueueFull = errors.New("alerting: notification queue full")

// Queue decouples producers from a slow notifier. Enqueue never blocks; a single
// worker drains the queue in order.
type Queue struct {
	ch     chan Notification
	next   Notifier
	logger zerolog.Logger
}

// NewQueue constructs a bounded queue in front of next.
func NewQueue(size int, next Notifier, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		ch:     make(chan Notification, size),
		next:   next,
		logger: logger.With().Str("component", "notify_queue").Logger(),
	}
}

// Notify enqueues the notification or returns ErrQueueFull.
func (q *Queue) Notify(ctx context.Context, note Notification) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- note:
		return nil
	default:
		q.logger.Warn().Str("notification_id", note.ID.String()).Msg("notification dropped, queue full")
		return ErrQueueFull
	}
}

// Ready delegates to the wrapped notifier when it supports readiness.
func (q *Queue) Ready(ctx context.Context) error {
	if r, ok := q.next.(Readier); ok {
		return r.Ready(ctx)
	}
	return nil
}

// Len reports queued notifications.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Run drains the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(q.ch); n > 0 {
				q.logger.Warn().Int("pending", n).Msg("queue stopped with undelivered notifications")
			}
			return nil
		case note := <-q.ch:
			if err := q.next.Notify(ctx, note); err != nil {
				q.logger.Error().Err(err).
					Str("notification_id", note.ID.String()).
					Str("kind", string(note.Kind)).
					Msg("notification delivery failed")
			}
		}
	}
}

var (
	_ Notifier = (*Queue)(nil)
	_ Readier  = (*Queue)(nil)
)
