package track

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/provider/adsb"
)

// errBackoff is how long the poller waits after a failed fetch before
// trying again.
const errBackoff = 60 * time.Second

// defaultRecentSize bounds the recently-seen callsign cache.
const defaultRecentSize = 256

// ContactFunc observes each contact of a fresh snapshot. Called from
// the poller goroutine.
type ContactFunc func(atc.Contact)

// SnapshotFunc observes each completed refresh. Called from the poller
// goroutine after the snapshot is swapped in.
type SnapshotFunc func(*Snapshot, time.Duration)

type pollerConfig struct {
	log        *slog.Logger
	onContact  ContactFunc
	onSnapshot SnapshotFunc
	recentSize int
}

// PollerOption configures a Poller.
type PollerOption func(*pollerConfig)

// WithLogger sets the poller logger.
func WithLogger(log *slog.Logger) PollerOption {
	return func(c *pollerConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithContactHandler sets the per-contact observer.
func WithContactHandler(fn ContactFunc) PollerOption {
	return func(c *pollerConfig) { c.onContact = fn }
}

// WithSnapshotHandler sets the per-refresh observer.
func WithSnapshotHandler(fn SnapshotFunc) PollerOption {
	return func(c *pollerConfig) { c.onSnapshot = fn }
}

// WithRecentSize overrides the recently-seen cache bound.
func WithRecentSize(n int) PollerOption {
	return func(c *pollerConfig) {
		if n > 0 {
			c.recentSize = n
		}
	}
}

// Poller refreshes the surveillance picture from a Source at the
// source's allowed rate and publishes each refresh as an immutable
// Snapshot.
type Poller struct {
	source adsb.Source
	lat    float64
	lon    float64
	radius float64
	cfg    pollerConfig

	snapshot atomic.Pointer[Snapshot]
	recent   *lru.Cache[string, string]

	pollCount atomic.Int64
	errCount  atomic.Int64
}

// NewPoller builds a poller around source for the given reference point
// and radius in nautical miles.
func NewPoller(source adsb.Source, lat, lon, radiusNM float64, opts ...PollerOption) *Poller {
	cfg := pollerConfig{
		log:        slog.Default(),
		recentSize: defaultRecentSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	recent, _ := lru.New[string, string](cfg.recentSize)
	p := &Poller{
		source: source,
		lat:    lat,
		lon:    lon,
		radius: radiusNM,
		cfg:    cfg,
		recent: recent,
	}
	p.snapshot.Store(EmptySnapshot())
	return p
}

// Current returns the latest snapshot. Never nil.
func (p *Poller) Current() *Snapshot { return p.snapshot.Load() }

// Polls reports how many refreshes have completed successfully.
func (p *Poller) Polls() int64 { return p.pollCount.Load() }

// Errors reports how many refreshes failed.
func (p *Poller) Errors() int64 { return p.errCount.Load() }

// RecentCallsign returns the last callsign observed for an icao24,
// including aircraft that have since faded from the snapshot.
func (p *Poller) RecentCallsign(icao24 string) (string, bool) {
	return p.recent.Get(icao24)
}

// RecentICAO returns the icao24 last seen broadcasting the given
// callsign, searching newest first.
func (p *Poller) RecentICAO(callsign string) (string, bool) {
	want := normalizeCallsign(callsign)
	keys := p.recent.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		if cs, ok := p.recent.Peek(keys[i]); ok && normalizeCallsign(cs) == want {
			return keys[i], true
		}
	}
	return "", false
}

// Run polls until ctx is cancelled. A fetch error keeps the previous
// snapshot and backs off before retrying.
func (p *Poller) Run(ctx context.Context) error {
	for {
		start := time.Now()
		contacts, err := p.source.AircraftInArea(ctx, p.lat, p.lon, p.radius)
		elapsed := time.Since(start)

		var wait time.Duration
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.errCount.Add(1)
			p.cfg.log.Error("surveillance fetch failed", "error", err, "backoff", errBackoff)
			wait = errBackoff
		} else {
			p.publish(contacts, elapsed)
			wait = p.source.MinInterval()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Poller) publish(contacts []atc.Contact, elapsed time.Duration) {
	snap := &Snapshot{
		Contacts: make(map[string]atc.Contact, len(contacts)),
		Taken:    time.Now(),
	}
	for _, c := range contacts {
		snap.Contacts[c.ICAO24] = c
		if c.Callsign != "" {
			p.recent.Add(c.ICAO24, c.Callsign)
		}
	}
	p.snapshot.Store(snap)
	p.pollCount.Add(1)
	p.cfg.log.Debug("surveillance refreshed", "contacts", snap.Len(), "elapsed", elapsed)

	if p.cfg.onContact != nil {
		for _, c := range snap.List() {
			p.cfg.onContact(c)
		}
	}
	if p.cfg.onSnapshot != nil {
		p.cfg.onSnapshot(snap, elapsed)
	}
}
