// Package adsbx implements adsb.Source against ADS-B Exchange v2
// compatible APIs, including the free community mirrors (adsb.lol,
// adsb.fi, airplanes.live) that serve the same shape without a key.
package adsbx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/geo"
	"github.com/quonset/squawkbox/pkg/provider/adsb"
)

const (
	defaultBaseURL = "https://opendata.adsb.fi/api"

	requestTimeout = 15 * time.Second
	minInterval    = 5 * time.Second
)

// Compile-time assertion that Client satisfies adsb.Source.
var _ adsb.Source = (*Client)(nil)

// Client queries the /v2/lat/{lat}/lon/{lon}/dist/{nm} endpoint. The API
// already reports aviation units, so no conversion is needed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// config holds optional configuration for the client.
type config struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*config)

// WithAPIKey sets the api-auth header sent on every request. The
// community mirrors ignore it; the commercial API requires it.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs an ADS-B Exchange compatible client.
func New(opts ...Option) *Client {
	cfg := &config{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		httpClient: cfg.httpClient,
		baseURL:    cfg.baseURL,
		apiKey:     cfg.apiKey,
	}
}

// MinInterval implements adsb.Source.
func (c *Client) MinInterval() time.Duration { return minInterval }

// AircraftInArea implements adsb.Source. The endpoint takes whole
// nautical miles, so the request rounds up and the exact radius is
// enforced on the response.
func (c *Client) AircraftInArea(ctx context.Context, lat, lon, radiusNM float64) ([]atc.Contact, error) {
	u := fmt.Sprintf("%s/v2/lat/%.6f/lon/%.6f/dist/%.0f", c.baseURL, lat, lon, math.Ceil(radiusNM))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("adsbx: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("api-auth", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adsbx: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adsbx: request: unexpected status %s", resp.Status)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("adsbx: decode response: %w", err)
	}

	now := time.Now()
	if payload.Now > 0 {
		now = time.UnixMilli(payload.Now)
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

// response is the wire shape of a /v2 area query.
type response struct {
	Now      int64      `json:"now"`
	Aircraft []aircraft `json:"ac"`
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

// toContact converts one aircraft record. Records without a position are
// dropped.
func (a aircraft) toContact(refLat, refLon float64, now time.Time) (atc.Contact, bool) {
	if a.Lat == nil || a.Lon == nil {
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
		Seen:         now.Add(-time.Duration(a.SeenPos * float64(time.Second))),
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
