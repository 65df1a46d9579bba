// Package budget implements the shared per-cycle request budget.
package budget

import (
	"errors"
	"sync/atomic"
)

// ErrRequestLimit signals that the cycle's request cap is exhausted.
// It is a cooperative stop signal, not a failure: callers stop issuing
// requests and let the orchestrator end the cycle gracefully.
var ErrRequestLimit = errors.New("request budget exhausted")

// Budget is a thread-safe request counter with a hard cap, shared by
// reference across every search client active in one scan cycle.
type Budget struct {
	cap  int64
	used atomic.Int64
}

// New creates a budget allowing at most cap requests.
func New(cap int) *Budget {
	return &Budget{cap: int64(cap)}
}

// Consume claims one request slot. Once the cap is reached every call
// returns ErrRequestLimit; failed claims do not count against the cap.
func (b *Budget) Consume() error {
	for {
		current := b.used.Load()
		if current >= b.cap {
			return ErrRequestLimit
		}
		if b.used.CompareAndSwap(current, current+1) {
			return nil
		}
	}
}

// Reset clears the used counter so a new cycle starts with the full
// cap. The orchestrator calls it at the top of every cycle; it must
// not be called while workers are in flight.
func (b *Budget) Reset() {
	b.used.Store(0)
}

// Used returns the number of successfully claimed requests.
func (b *Budget) Used() int {
	return int(b.used.Load())
}

// Cap returns the configured hard cap.
func (b *Budget) Cap() int {
	return int(b.cap)
}

// Exhausted reports whether no request slots remain. Workers check
// this before starting new work; there is no mid-request preemption.
func (b *Budget) Exhausted() bool {
	return b.used.Load() >= b.cap
}
