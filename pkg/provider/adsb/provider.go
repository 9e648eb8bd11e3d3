// Package adsb defines the Source interface for aircraft surveillance
// feeds.
//
// A Source answers one question: which aircraft are currently within a
// radius of a reference point. Implementations live in subpackages — the
// OpenSky Network (opensky), ADS-B Exchange compatible APIs (adsbx), a
// local dump1090 receiver (local) — plus a mock for tests.
//
// Sources do not poll. The track poller owns the refresh loop and asks
// each Source for its minimum request spacing so third-party rate limits
// are respected.
package adsb

import (
	"context"
	"time"

	"github.com/quonset/squawkbox/pkg/atc"
)

// Source is a single surveillance feed.
//
// Implementations must be safe for use from one goroutine at a time; the
// poller never issues concurrent calls.
type Source interface {
	// AircraftInArea returns all airborne and surface contacts within
	// radiusNM nautical miles of (lat, lon). Contacts carry distance and
	// bearing from the reference point. The order is unspecified.
	AircraftInArea(ctx context.Context, lat, lon, radiusNM float64) ([]atc.Contact, error)

	// MinInterval is the shortest allowed spacing between consecutive
	// AircraftInArea calls. The poller uses the larger of this and the
	// configured update interval. It may change over the Source's life,
	// for example when authentication degrades.
	MinInterval() time.Duration
}
