package history

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Capacity is the number of samples kept per asset.
const Capacity = 4

// Ring keeps the last Capacity samples per asset, oldest first.
type Ring struct {
	mu      sync.Mutex
	samples map[string][]decimal.Decimal
}

// NewRing constructs an empty ring.
func NewRing() *Ring {
	return &Ring{samples: make(map[string][]decimal.Decimal)}
}

// Record appends a sample for asset, evicting the oldest once full.
func (r *Ring) Record(asset string, value decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := r.samples[asset]
	if len(buf) == Capacity {
		copy(buf, buf[1:])
		buf[Capacity-1] = value
		return
	}
	if buf == nil {
		buf = make([]decimal.Decimal, 0, Capacity)
	}
	r.samples[asset] = append(buf, value)
}

// Window returns a copy of the samples for asset once the buffer is full.
func (r *Ring) Window(asset string) ([]decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := r.samples[asset]
	if len(buf) != Capacity {
		return nil, false
	}
	return append([]decimal.Decimal(nil), buf...), true
}

// Len reports how many samples are held for asset.
func (r *Ring) Len(asset string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples[asset])
}

// Reset drops every sample.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = make(map[string][]decimal.Decimal)
}
