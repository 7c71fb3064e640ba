package market

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Store publishes whole snapshots from a single writer to any number of readers.
// Readers should call Current once per operation and work from that pointer.
type Store struct {
	current   atomic.Pointer[Snapshot]
	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int
}

// NewStore returns a store holding the empty snapshot.
func NewStore() *Store {
	s := &Store{
		ready: make(chan struct{}),
		subs:  make(map[int]chan *Snapshot),
	}
	s.current.Store(Empty())
	return s
}

// Publish replaces the current snapshot. Empty snapshots are ignored so a failed fetch never
// hides the last good data. It reports whether the snapshot was published.
func (s *Store) Publish(snap *Snapshot) bool {
	if snap.IsEmpty() {
		return false
	}
	s.current.Store(snap)
	s.readyOnce.Do(func() { close(s.ready) })
	s.broadcast(snap)
	return true
}

// Current returns the latest snapshot; it is empty until the first successful fetch.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Ready is closed once the first non-empty snapshot has been published.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// IsReady reports whether data is available.
func (s *Store) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until data is available or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastSuccess is the fetch time of the published snapshot.
func (s *Store) LastSuccess() (time.Time, bool) {
	if !s.IsReady() {
		return time.Time{}, false
	}
	return s.Current().FetchedAt(), true
}

// Subscribe delivers every published snapshot. Slow subscribers only see the latest one.
// The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) broadcast(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// drop the stale pending snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
