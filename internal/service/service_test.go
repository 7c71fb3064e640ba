package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cryptalert/internal/alerting"
	"cryptalert/internal/market"
	"cryptalert/internal/scheduler"
)

type readyNotifier struct {
	recordingNotifier
	err error
}

func (r *readyNotifier) Ready(context.Context) error { return r.err }

func TestStartGateWaitsForSnapshotAndNotifier(t *testing.T) {
	store := market.NewStore()
	notifier := &readyNotifier{err: errors.New("token rejected")}
	gate := StartGate(store, notifier)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := gate(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("gate should block until the first snapshot, got %v", err)
	}

	store.Publish(snapshotAt(noon, 100, 50))
	if err := gate(context.Background()); err == nil {
		t.Fatal("gate should report notifier readiness failure")
	}

	notifier.err = nil
	if err := gate(context.Background()); err != nil {
		t.Fatalf("gate should open: %v", err)
	}
}

func TestServiceRunEndToEnd(t *testing.T) {
	store := market.NewStore()
	values := []int64{100, 100, 100, 105}
	steps := make([]func() (*market.Snapshot, error), 0, len(values))
	for i, v := range values {
		steps = append(steps, ok(snapshotAt(noon.Add(time.Duration(i)*time.Second), v, 50)))
	}
	loop := NewFetchLoop(&scriptedFetcher{steps: steps}, store, 10*time.Millisecond, zerolog.Nop())

	notifier := &recordingNotifier{}
	queue := alerting.NewQueue(8, notifier, zerolog.Nop())
	f := newEngineFixture(t, noon, func(o *EngineOptions, d *EngineDeps) {
		o.SampleInterval = 10 * time.Millisecond
		o.MaxSampleGap = time.Hour
		d.Store = store
		d.Notifier = queue
	})

	gate := StartGate(store, queue)
	sampler := scheduler.New(scheduler.Options{Name: "sample", Interval: 10 * time.Millisecond, Gate: gate}, zerolog.Nop())

	svc := New(Options{
		FetchLoop: loop,
		Engine:    f.engine,
		Sampler:   sampler,
		Gate:      gate,
		Workers:   []Worker{queue},
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	notes := notifier.all()
	if len(notes) == 0 {
		t.Fatal("expected the 5% btc move to be delivered")
	}
	for _, note := range notes {
		for _, a := range note.Alerts {
			if a.Asset != "btc" {
				t.Fatalf("unexpected alert for %s", a.Asset)
			}
		}
	}
}

func TestServiceRequiresFetchLoop(t *testing.T) {
	if err := New(Options{}, zerolog.Nop()).Run(context.Background()); err == nil {
		t.Fatal("expected error without fetch loop")
	}
}

func TestServiceWorkerErrorStopsRun(t *testing.T) {
	store := market.NewStore()
	loop := NewFetchLoop(&scriptedFetcher{steps: []func() (*market.Snapshot, error){fail}}, store, 5*time.Millisecond, zerolog.Nop())
	boom := errors.New("boom")

	err := New(Options{
		FetchLoop: loop,
		Workers:   []Worker{WorkerFunc(func(context.Context) error { return boom })},
	}, zerolog.Nop()).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected worker error, got %v", err)
	}
}
