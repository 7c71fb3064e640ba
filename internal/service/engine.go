package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptalert/internal/alerting"
	"cryptalert/internal/history"
	"cryptalert/internal/market"
	"cryptalert/internal/scheduler"
	"cryptalert/internal/storage"
	"cryptalert/internal/threshold"
)

// EngineOptions parameterise the alert engine.
type EngineOptions struct {
	Currencies     []string
	ShortThreshold decimal.Decimal
	LongThreshold  decimal.Decimal
	Field          market.Field
	// SampleInterval is the spacing between samples and words the comparison windows.
	SampleInterval time.Duration
	// MaxSampleGap resets the ring when consecutive samples are further apart.
	MaxSampleGap time.Duration
	ActiveHours  scheduler.ActiveHours
	Location     *time.Location
	LockKey      int64
}

// EngineDeps are the collaborators of the alert engine. Audit and Locker are optional.
type EngineDeps struct {
	Store    *market.Store
	Ring     *history.Ring
	Trend    *market.TrendTracker
	Notifier alerting.Notifier
	Audit    storage.AlertStore
	Locker   storage.AdvisoryLocker
	Clock    func() time.Time
}

// AlertEngine samples the current snapshot into the history ring, compares the short
// and long windows, and emits aggregated alert and digest notifications.
type AlertEngine struct {
	opts   EngineOptions
	deps   EngineDeps
	logger zerolog.Logger

	mu         sync.Mutex
	lastSample time.Time
}

// NewAlertEngine constructs an engine.
func NewAlertEngine(opts EngineOptions, deps EngineDeps, logger zerolog.Logger) *AlertEngine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Field == "" {
		opts.Field = market.FieldChangePercent
	}
	if deps.Ring == nil {
		deps.Ring = history.NewRing()
	}
	if deps.Trend == nil {
		deps.Trend = market.NewTrendTracker()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &AlertEngine{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "alert_engine").Logger(),
	}
}

// ShortWindow is the span covered by the short comparison.
func (e *AlertEngine) ShortWindow() time.Duration {
	return e.opts.SampleInterval
}

// LongWindow is the span the ring covers, used to word the long comparison.
func (e *AlertEngine) LongWindow() time.Duration {
	return e.opts.SampleInterval * history.Capacity
}

func (e *AlertEngine) active() bool {
	return e.opts.ActiveHours.Contains(e.deps.Clock().In(e.opts.Location))
}

// SampleTick records the current snapshot and dispatches any alerts. It is the
// sampling scheduler's tick function.
func (e *AlertEngine) SampleTick(ctx context.Context, at time.Time) error {
	if !e.active() {
		e.logger.Debug().Msg("outside active hours, sampling skipped")
		return nil
	}
	snap := e.deps.Store.Current()
	if snap.IsEmpty() {
		e.logger.Debug().Msg("no snapshot yet, sampling skipped")
		return nil
	}
	e.Sample(snap, at)
	return e.Dispatch(ctx, at, e.Evaluate())
}

// Sample feeds the watched assets of snap into the ring.
func (e *AlertEngine) Sample(snap *market.Snapshot, at time.Time) {
	e.mu.Lock()
	if !e.lastSample.IsZero() && e.opts.MaxSampleGap > 0 && at.Sub(e.lastSample) > e.opts.MaxSampleGap {
		e.logger.Info().
			Dur("gap", at.Sub(e.lastSample)).
			Msg("sample gap exceeded, history reset")
		e.deps.Ring.Reset()
	}
	e.lastSample = at
	e.mu.Unlock()

	for _, asset := range e.opts.Currencies {
		q, ok := snap.Quote(asset)
		if !ok {
			e.logger.Debug().Str("asset", asset).Msg("asset missing from snapshot")
			continue
		}
		e.deps.Ring.Record(asset, q.Value(e.opts.Field))
	}
}

// Evaluate compares the short window (newest vs previous) and the long window (newest vs
// oldest) of every asset with a full ring.
func (e *AlertEngine) Evaluate() []alerting.AssetAlert {
	var alerts []alerting.AssetAlert
	for _, asset := range e.opts.Currencies {
		window, ok := e.deps.Ring.Window(asset)
		if !ok {
			e.logger.Debug().Str("asset", asset).Int("samples", e.deps.Ring.Len(asset)).Msg("history not ready")
			continue
		}
		newest := window[history.Capacity-1]
		alert := alerting.AssetAlert{
			Asset: asset,
			Short: threshold.Compare(newest, window[history.Capacity-2], e.opts.ShortThreshold),
			Long:  threshold.Compare(newest, window[0], e.opts.LongThreshold),
		}
		if alert.Triggered() {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// Dispatch audits and delivers one aggregated notification for alerts.
func (e *AlertEngine) Dispatch(ctx context.Context, at time.Time, alerts []alerting.AssetAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		e.logger.Debug().Msg("skip dispatch because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	batch := uuid.New()
	if e.deps.Audit != nil {
		if err := e.deps.Audit.InsertAlerts(ctx, e.auditRecords(batch, alerts)); err != nil {
			e.logger.Error().Err(err).Str("batch_id", batch.String()).Msg("failed to persist alert records")
		}
	}

	note := alerting.NewAlertNotification(batch, at, alerts, e.ShortWindow(), e.LongWindow())
	e.logger.Info().
		Str("batch_id", batch.String()).
		Int("assets", len(alerts)).
		Msg("threshold crossed")
	if err := e.deps.Notifier.Notify(ctx, note); err != nil {
		return fmt.Errorf("dispatch alert: %w", err)
	}
	return nil
}

func (e *AlertEngine) auditRecords(batch uuid.UUID, alerts []alerting.AssetAlert) []storage.AlertRecord {
	records := make([]storage.AlertRecord, 0, 2*len(alerts))
	for _, a := range alerts {
		if a.Short.Triggered {
			records = append(records, storage.AlertRecord{
				BatchID:       batch,
				Asset:         a.Asset,
				Window:        storage.WindowShort,
				ChangePercent: a.Short.ChangePercent,
				ThresholdPct:  e.opts.ShortThreshold,
				Message:       a.Short.Message,
			})
		}
		if a.Long.Triggered {
			records = append(records, storage.AlertRecord{
				BatchID:       batch,
				Asset:         a.Asset,
				Window:        storage.WindowLong,
				ChangePercent: a.Long.ChangePercent,
				ThresholdPct:  e.opts.LongThreshold,
				Message:       a.Long.Message,
			})
		}
	}
	return records
}

// DigestTick sends the periodic market digest. It is the digest scheduler's tick function.
func (e *AlertEngine) DigestTick(ctx context.Context, at time.Time) error {
	if !e.active() {
		return nil
	}
	snap := e.deps.Store.Current()
	if snap.IsEmpty() {
		e.logger.Debug().Msg("no snapshot yet, digest skipped")
		return nil
	}

	digest := alerting.NewDigest(e.deps.Trend.Status(snap.Market()), snap)
	if err := e.deps.Notifier.Notify(ctx, alerting.NewDigestNotification(at, "", digest)); err != nil {
		return fmt.Errorf("dispatch digest: %w", err)
	}
	return nil
}

// RunOnPublish samples every newly published snapshot instead of a timer. gate, when
// set, must pass before the first sample.
func (e *AlertEngine) RunOnPublish(ctx context.Context, gate scheduler.GateFunc) error {
	if gate != nil {
		if err := gate(ctx); err != nil {
			return err
		}
	}

	updates, cancel := e.deps.Store.Subscribe()
	defer cancel()

	e.logger.Info().Msg("sampling on publish")
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if !e.active() {
				continue
			}
			e.Sample(snap, snap.FetchedAt())
			if err := e.Dispatch(ctx, snap.FetchedAt(), e.Evaluate()); err != nil {
				e.logger.Error().Err(err).Msg("publish-driven evaluation failed")
			}
		}
	}
}

func (e *AlertEngine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.opts.LockKey == 0 || e.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.deps.Locker.TryAdvisoryLock(ctx, e.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
