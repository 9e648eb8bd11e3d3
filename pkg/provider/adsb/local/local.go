// Package local implements adsb.Source against a dump1090/readsb
// receiver's aircraft.json. This is the zero-dependency option for
// anyone with an RTL-SDR on the LAN: no accounts, no rate limits, and
// sub-second data latency.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/geo"
	"github.com/quonset/squawkbox/pkg/provider/adsb"
)

const (
	defaultURL = "http://localhost:8080/data/aircraft.json"

	requestTimeout = 5 * time.Second
	minInterval    = time.Second

	// dump1090 keeps aircraft in the file for minutes after the last
	// position message; anything older than this is not a current contact.
	staleAfter = 60 * time.Second
)

// Compile-time assertion that Client satisfies adsb.Source.
var _ adsb.Source = (*Client)(nil)

// Client fetches aircraft.json and filters it to the requested radius.
// The receiver reports everything it hears, so unlike the hosted APIs
// there is no server-side area query.
type Client struct {
	httpClient *http.Client
	url        string
}

// config holds optional configuration for the client.
type config struct {
	url        string
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*config)

// WithURL overrides the default aircraft.json URL.
func WithURL(url string) Option {
	return func(c *config) {
		c.url = url
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a client for a local receiver.
func New(opts ...Option) *Client {
	cfg := &config{url: defaultURL}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{httpClient: cfg.httpClient, url: cfg.url}
}

// MinInterval implements adsb.Source.
func (c *Client) MinInterval() time.Duration { return minInterval }

// AircraftInArea implements adsb.Source.
func (c *Client) AircraftInArea(ctx context.Context, lat, lon, radiusNM float64) ([]atc.Contact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("local: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local: request: unexpected status %s", resp.Status)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("local: decode aircraft.json: %w", err)
	}

	now := time.Now()
	if payload.Now > 0 {
		now = time.Unix(0, int64(payload.Now*float64(time.Second)))
	}

	contacts := make([]atc.Contact, 0, len(payload.Aircraft))
	for _, ac := range payload.Aircraft {
		contact, ok := ac.toContact(lat, lon, now)
		if !ok || contact.DistanceNM > radiusNM {
			continue
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

// response is the wire shape of aircraft.json. The now field is unix
// seconds with a fractional part.
type response struct {
	Now      float64    `json:"now"`
	Aircraft []aircraft `json:"aircraft"`
}

// groundMarker is what alt_baro holds for aircraft on the surface.
var groundMarker = []byte(`"ground"`)

type aircraft struct {
	Hex      string          `json:"hex"`
	Flight   string          `json:"flight"`
	AltBaro  json.RawMessage `json:"alt_baro"`
	GS       float64         `json:"gs"`
	Track    float64         `json:"track"`
	BaroRate float64         `json:"baro_rate"`
	Squawk   string          `json:"squawk"`
	Lat      *float64        `json:"lat"`
	Lon      *float64        `json:"lon"`
	SeenPos  float64         `json:"seen_pos"`
}

// toContact converts one record, dropping aircraft without a position or
// with one too old to act on.
func (a aircraft) toContact(refLat, refLon float64, now time.Time) (atc.Contact, bool) {
	if a.Lat == nil || a.Lon == nil {
		return atc.Contact{}, false
	}
	age := time.Duration(a.SeenPos * float64(time.Second))
	if age > staleAfter {
		return atc.Contact{}, false
	}

	contact := atc.Contact{
		ICAO24:       strings.ToLower(strings.TrimSpace(a.Hex)),
		Callsign:     strings.TrimSpace(a.Flight),
		Lat:          *a.Lat,
		Lon:          *a.Lon,
		GroundSpeed:  int(a.GS),
		Track:        int(a.Track),
		VerticalRate: int(a.BaroRate),
		Squawk:       strings.TrimSpace(a.Squawk),
		Seen:         now.Add(-age),
		DistanceNM:   geo.DistanceNM(refLat, refLon, *a.Lat, *a.Lon),
		BearingDeg:   geo.BearingDeg(refLat, refLon, *a.Lat, *a.Lon),
	}

	switch {
	case bytes.Equal(bytes.TrimSpace(a.AltBaro), groundMarker):
		contact.OnGround = true
	case len(a.AltBaro) > 0:
		var alt float64
		if err := json.Unmarshal(a.AltBaro, &alt); err == nil {
			contact.Altitude = int(alt)
		}
	}
	return contact, true
}
