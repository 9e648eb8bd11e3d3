// Package bus fans events out from the monitor to UI subscribers.
//
// Each subscriber owns a bounded queue. Publish never blocks: when a
// queue is full the oldest event is dropped, because a stale aircraft
// position or stats sample is worthless by the time a slow consumer
// would get to it. Delivery is at-most-once, in order per subscriber.
package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Event kinds published by the monitor.
const (
	KindChannelRecording    = "channel_recording"
	KindATCTransmission     = "atc_transmission"
	KindWorkerStatus        = "worker_status"
	KindStatsUpdate         = "stats_update"
	KindUpdateAircraft      = "update_aircraft"
	KindAlert               = "alert"
	KindChannelsInitialized = "channels_initialized"
)

// DefaultSoftCap bounds a subscriber queue when no cap is configured.
const DefaultSoftCap = 100

// Event is one bus message. Data is kind-specific and must be JSON
// serializable because the websocket feed forwards events verbatim.
type Event struct {
	Kind string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"timestamp"`
}

// Subscriber is one bounded event queue.
type Subscriber struct {
	name    string
	ch      chan Event
	dropped atomic.Int64
	bus     *Bus

	closeOnce sync.Once
}

// Events returns the delivery channel. It is closed when the
// subscriber is closed.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Name returns the subscriber name given to Subscribe.
func (s *Subscriber) Name() string { return s.name }

// Dropped reports how many events were discarded because the queue was
// full.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Close detaches the subscriber from the bus and closes its channel.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.bus.remove(s)
	})
}

// Bus is the fan-out hub.
type Bus struct {
	softCap int
	log     *slog.Logger

	mu   sync.Mutex
	subs []*Subscriber
	seq  int
}

// New builds a bus. A non-positive softCap uses the default. log may
// be nil.
func New(softCap int, log *slog.Logger) *Bus {
	if softCap <= 0 {
		softCap = DefaultSoftCap
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bus{softCap: softCap, log: log}
}

// Subscribe attaches a new subscriber. Names are decorative; duplicate
// names get a numeric suffix so log lines stay distinguishable.
func (b *Bus) Subscribe(name string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	for _, s := range b.subs {
		if s.name == name {
			name = name + "-" + strconv.Itoa(b.seq)
			break
		}
	}
	sub := &Subscriber{
		name: name,
		ch:   make(chan Event, b.softCap),
		bus:  b,
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(kind string, data any) {
	b.PublishEvent(Event{Kind: kind, Data: data, Time: time.Now()})
}

// PublishEvent delivers a pre-built event to every subscriber.
func (b *Bus) PublishEvent(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Queue full: evict the oldest, then retry once. If a racing
		// reader drained the queue in between the retry just succeeds.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount reports how many subscribers are attached.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped sums dropped events across current subscribers.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total int64
	for _, s := range b.subs {
		total += s.Dropped()
	}
	return total
}

func (b *Bus) remove(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	close(sub.ch)
}
