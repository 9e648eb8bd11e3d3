package correlate

import (
	"sync"
	"time"
)

// rollingWindow keeps the last N request latencies in a ring buffer so
// the moving average forgets ancient slow calls. Safe for concurrent
// use.
type rollingWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	pos     int
	count   int
	size    int
}

func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = 100
	}
	return &rollingWindow{
		samples: make([]time.Duration, size),
		size:    size,
	}
}

// Record adds a latency sample, overwriting the oldest once full.
func (w *rollingWindow) Record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.pos] = d
	w.pos = (w.pos + 1) % w.size
	w.count++
}

// Mean returns the average over the current window, 0 when empty.
func (w *rollingWindow) Mean() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.count
	if n > w.size {
		n = w.size
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / time.Duration(n)
}

// Stats aggregates correlator request accounting.
type Stats struct {
	mu               sync.Mutex
	apiCalls         int64
	totalTokens      int64
	errors           int64
	lastContextUsage int
	latency          *rollingWindow
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	APICalls         int64
	TotalTokens      int64
	Errors           int64
	MeanLatency      time.Duration
	LastContextUsage int
}

func newStats(window int) *Stats {
	return &Stats{latency: newRollingWindow(window)}
}

// recordCall accounts one completed request. tokens is prompt plus
// response tokens; contextUsage is the prompt estimate plus the
// reserved response against the context window.
func (s *Stats) recordCall(latency time.Duration, tokens int64, contextUsage int, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiCalls++
	s.totalTokens += tokens
	s.lastContextUsage = contextUsage
	if failed {
		s.errors++
	}
	s.latency.Record(latency)
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		APICalls:         s.apiCalls,
		TotalTokens:      s.totalTokens,
		Errors:           s.errors,
		MeanLatency:      s.latency.Mean(),
		LastContextUsage: s.lastContextUsage,
	}
}
