package alerting

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the log. Used when no chat delivery is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered text.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("notification_id", note.ID.String()).
		Str("kind", string(note.Kind)).
		Str("text", Render(note)).
		Msg("notification")
	return nil
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify delivers to every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ready requires every readiness-aware notifier to be ready.
func (m Multi) Ready(ctx context.Context) error {
	for _, n := range m {
		if r, ok := n.(Readier); ok {
			if err := r.Ready(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
