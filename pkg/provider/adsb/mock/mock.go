// Package mock provides test doubles for the adsb package interfaces.
//
// Use Source to serve scripted contact lists and inspect the query
// areas the poller asked for. ContactsFn takes precedence over
// Contacts/Err when set.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/provider/adsb"
)

// AircraftInAreaCall records a single invocation of Source.AircraftInArea.
type AircraftInAreaCall struct {
	// Ctx is the context passed to AircraftInArea.
	Ctx context.Context
	// Lat, Lon and RadiusNM are the query area.
	Lat, Lon, RadiusNM float64
}

// Source is a mock implementation of adsb.Source.
type Source struct {
	mu sync.Mutex

	// Contacts is returned from AircraftInArea when ContactsFn is nil.
	Contacts []atc.Contact

	// ContactsFn, if non-nil, computes the result per call.
	ContactsFn func(lat, lon, radiusNM float64) ([]atc.Contact, error)

	// Err, if non-nil, is returned as the error from AircraftInArea.
	Err error

	// Interval is returned from MinInterval.
	Interval time.Duration

	// Calls records every call to AircraftInArea.
	Calls []AircraftInAreaCall
}

// AircraftInArea records the call and returns the scripted contacts.
func (s *Source) AircraftInArea(ctx context.Context, lat, lon, radiusNM float64) ([]atc.Contact, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, AircraftInAreaCall{Ctx: ctx, Lat: lat, Lon: lon, RadiusNM: radiusNM})
	fn := s.ContactsFn
	contacts := s.Contacts
	err := s.Err
	s.mu.Unlock()

	if fn != nil {
		return fn(lat, lon, radiusNM)
	}
	if err != nil {
		return nil, err
	}
	out := make([]atc.Contact, len(contacts))
	copy(out, contacts)
	return out, nil
}

// MinInterval implements adsb.Source.
func (s *Source) MinInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Interval
}

// SetContacts replaces the scripted contact list. Thread-safe.
func (s *Source) SetContacts(contacts []atc.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Contacts = contacts
}

// SetErr replaces the scripted error. Thread-safe.
func (s *Source) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// CallCount returns how many times AircraftInArea has been invoked.
// Thread-safe.
func (s *Source) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

// Ensure Source implements adsb.Source at compile time.
var _ adsb.Source = (*Source)(nil)
