package bus

import (
	"sync"
	"time"
)

// Batch defaults; transmissions arrive in bursts when a frequency gets
// busy and UI consumers repaint per flush, not per event.
const (
	DefaultBatchInterval = 500 * time.Millisecond
	DefaultBatchMax      = 20
)

// Batcher coalesces transmission events for slow consumers: a batch is
// released when it reaches the size cap or when the flush interval has
// passed since the previous release. Safe for concurrent use.
type Batcher struct {
	interval time.Duration
	max      int

	mu        sync.Mutex
	pending   []Event
	lastFlush time.Time
}

// NewBatcher builds a batcher. Non-positive arguments use the defaults.
func NewBatcher(interval time.Duration, max int) *Batcher {
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	if max <= 0 {
		max = DefaultBatchMax
	}
	return &Batcher{
		interval:  interval,
		max:       max,
		lastFlush: time.Now(),
	}
}

// Add queues an event and returns a batch when one is due, nil
// otherwise.
func (b *Batcher) Add(ev Event) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, ev)
	if len(b.pending) >= b.max || time.Since(b.lastFlush) >= b.interval {
		return b.flushLocked()
	}
	return nil
}

// Flush releases whatever is pending if the interval has passed,
// regardless of batch size. Called from a ticker so a lone
// transmission is not stuck waiting for company.
func (b *Batcher) Flush() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 || time.Since(b.lastFlush) < b.interval {
		return nil
	}
	return b.flushLocked()
}

// Pending reports how many events are waiting.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) flushLocked() []Event {
	out := b.pending
	b.pending = nil
	b.lastFlush = time.Now()
	return out
}
