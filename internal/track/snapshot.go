// Package track maintains the live surveillance picture: it polls an
// ADS-B source, publishes the result as an immutable snapshot, and
// offers read-only lookup helpers over that snapshot.
package track

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/quonset/squawkbox/pkg/atc"
)

// Default tolerances for the lookup helpers.
const (
	DefaultAltitudeTolerance = 500 // feet
	DefaultBearingTolerance  = 30  // degrees
	DefaultDistanceTolerance = 5   // nautical miles
)

// Snapshot is one immutable surveillance refresh. Contacts are keyed by
// ICAO24. Snapshots are swapped wholesale on every poll, so holders may
// read them without locking.
type Snapshot struct {
	// Contacts maps icao24 to the observation from this refresh.
	Contacts map[string]atc.Contact

	// Taken is when the refresh completed.
	Taken time.Time
}

// EmptySnapshot returns a usable zero snapshot.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Contacts: map[string]atc.Contact{}}
}

// List returns all contacts ordered by distance from the reference
// point, nearest first.
func (s *Snapshot) List() []atc.Contact {
	out := make([]atc.Contact, 0, len(s.Contacts))
	for _, c := range s.Contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceNM < out[j].DistanceNM })
	return out
}

// Len reports the contact count.
func (s *Snapshot) Len() int { return len(s.Contacts) }

// ByCallsign returns the contact whose broadcast callsign matches cs
// after normalization (trim, uppercase).
func (s *Snapshot) ByCallsign(cs string) (atc.Contact, bool) {
	want := normalizeCallsign(cs)
	if want == "" {
		return atc.Contact{}, false
	}
	for _, c := range s.Contacts {
		if normalizeCallsign(c.Callsign) == want {
			return c, true
		}
	}
	return atc.Contact{}, false
}

// ClosestByCallsign returns the contact with the smallest Levenshtein
// distance to cs, along with that distance. Contacts without a callsign
// are skipped. Ties go to the nearer aircraft.
func (s *Snapshot) ClosestByCallsign(cs string) (atc.Contact, int, bool) {
	want := normalizeCallsign(cs)
	if want == "" {
		return atc.Contact{}, 0, false
	}

	var best atc.Contact
	bestDist := -1
	for _, c := range s.List() {
		have := normalizeCallsign(c.Callsign)
		if have == "" {
			continue
		}
		d := matchr.Levenshtein(want, have)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 {
		return atc.Contact{}, 0, false
	}
	return best, bestDist, true
}

// AtAltitude returns contacts within tol feet of ft. A non-positive tol
// uses the default tolerance.
func (s *Snapshot) AtAltitude(ft, tol int) []atc.Contact {
	if tol <= 0 {
		tol = DefaultAltitudeTolerance
	}
	var out []atc.Contact
	for _, c := range s.List() {
		if abs(c.Altitude-ft) <= tol {
			out = append(out, c)
		}
	}
	return out
}

// NearPosition returns contacts within tolDeg of the given bearing and
// tolNM of the given distance from the reference point. Non-positive
// tolerances use the defaults.
func (s *Snapshot) NearPosition(bearingDeg, distNM, tolDeg, tolNM float64) []atc.Contact {
	if tolDeg <= 0 {
		tolDeg = DefaultBearingTolerance
	}
	if tolNM <= 0 {
		tolNM = DefaultDistanceTolerance
	}
	var out []atc.Contact
	for _, c := range s.List() {
		if angleDiff(c.BearingDeg, bearingDeg) <= tolDeg && math.Abs(c.DistanceNM-distNM) <= tolNM {
			out = append(out, c)
		}
	}
	return out
}

func normalizeCallsign(cs string) string {
	return strings.ToUpper(strings.TrimSpace(cs))
}

// angleDiff returns the smallest absolute difference between two
// bearings, accounting for the 360° wrap.
func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
