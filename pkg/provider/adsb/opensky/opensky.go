// Package opensky implements adsb.Source against the OpenSky Network
// REST API.
//
// Three authentication modes are supported, tried in this order:
//
//   - OAuth2 client credentials (the current OpenSky API). Tokens are
//     cached and refreshed one minute before expiry.
//   - HTTP Basic auth with a legacy username/password. Used when the
//     token endpoint rejects the client credentials as malformed.
//   - Anonymous. Entered permanently when the token endpoint rejects the
//     credentials outright; anonymous clients get half the request rate.
package opensky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/geo"
	"github.com/quonset/squawkbox/pkg/provider/adsb"
)

const (
	defaultBaseURL  = "https://opensky-network.org/api"
	defaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

	requestTimeout = 15 * time.Second

	// Authenticated accounts may poll every 5 s, anonymous every 10 s.
	minIntervalAuth = 5 * time.Second
	minIntervalAnon = 10 * time.Second

	// Refresh tokens a minute before OpenSky would reject them.
	tokenEarlyExpiry = time.Minute
)

// OpenSky reports SI units; contacts use aviation units.
const (
	metersToFeet       = 3.28084
	mpsToKnots         = 1.94384
	mpsToFeetPerMinute = 196.85
)

// Column indices within an OpenSky state vector.
const (
	colICAO24       = 0
	colCallsign     = 1
	colTimePosition = 3
	colLongitude    = 5
	colLatitude     = 6
	colOnGround     = 8
	colVelocity     = 9
	colTrueTrack    = 10
	colVerticalRate = 11
	colGeoAltitude  = 13
	colSquawk       = 14
)

type authMode int32

const (
	modeAnonymous authMode = iota
	modeBasic
	modeOAuth
)

// Compile-time assertion that Client satisfies adsb.Source.
var _ adsb.Source = (*Client)(nil)

// Client queries the OpenSky /states/all endpoint for aircraft inside a
// bounding box and filters the result to the requested radius.
type Client struct {
	httpClient *http.Client
	baseURL    string

	user, pass string
	tokens     oauth2.TokenSource

	intervalAuth time.Duration
	intervalAnon time.Duration

	mode atomic.Int32
}

// config holds optional configuration for the client.
type config struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client

	clientID, clientSecret string
	user, pass             string

	intervalAuth time.Duration
	intervalAnon time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithClientCredentials enables OAuth2 client-credentials authentication.
func WithClientCredentials(id, secret string) Option {
	return func(c *config) {
		c.clientID = id
		c.clientSecret = secret
	}
}

// WithBasicAuth sets a legacy username/password. Used directly when no
// client credentials are given, or as the fallback when the token
// endpoint answers 400.
func WithBasicAuth(user, pass string) Option {
	return func(c *config) {
		c.user = user
		c.pass = pass
	}
}

// WithBaseURL overrides the default OpenSky API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTokenURL overrides the default OAuth2 token endpoint.
func WithTokenURL(url string) Option {
	return func(c *config) {
		c.tokenURL = url
	}
}

// WithHTTPClient overrides the HTTP client used for API and token
// requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithPollIntervals overrides the minimum spacing between requests for
// authenticated and anonymous access. Zero keeps the default for that
// mode.
func WithPollIntervals(auth, anon time.Duration) Option {
	return func(c *config) {
		c.intervalAuth = auth
		c.intervalAnon = anon
	}
}

// New constructs an OpenSky client. Without credential options the client
// runs anonymously.
func New(opts ...Option) *Client {
	cfg := &config{
		baseURL:  defaultBaseURL,
		tokenURL: defaultTokenURL,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: requestTimeout}
	}

	c := &Client{
		httpClient:   cfg.httpClient,
		baseURL:      cfg.baseURL,
		user:         cfg.user,
		pass:         cfg.pass,
		intervalAuth: cfg.intervalAuth,
		intervalAnon: cfg.intervalAnon,
	}
	if c.intervalAuth <= 0 {
		c.intervalAuth = minIntervalAuth
	}
	if c.intervalAnon <= 0 {
		c.intervalAnon = minIntervalAnon
	}
	switch {
	case cfg.clientID != "" && cfg.clientSecret != "":
		conf := &clientcredentials.Config{
			ClientID:     cfg.clientID,
			ClientSecret: cfg.clientSecret,
			TokenURL:     cfg.tokenURL,
		}
		tokCtx := context.WithValue(context.Background(), oauth2.HTTPClient, cfg.httpClient)
		c.tokens = oauth2.ReuseTokenSourceWithExpiry(nil, conf.TokenSource(tokCtx), tokenEarlyExpiry)
		c.mode.Store(int32(modeOAuth))
	case cfg.user != "":
		c.mode.Store(int32(modeBasic))
	default:
		c.mode.Store(int32(modeAnonymous))
	}
	return c
}

// MinInterval implements adsb.Source. It widens when the client has
// degraded to anonymous access.
func (c *Client) MinInterval() time.Duration {
	if authMode(c.mode.Load()) == modeAnonymous {
		return c.intervalAnon
	}
	return c.intervalAuth
}

// AircraftInArea implements adsb.Source. It requests the bounding box
// that circumscribes the radius and trims the corners afterwards.
func (c *Client) AircraftInArea(ctx context.Context, lat, lon, radiusNM float64) ([]atc.Contact, error) {
	box := geo.Box(lat, lon, radiusNM)

	q := url.Values{}
	q.Set("lamin", formatCoord(box.LatMin))
	q.Set("lamax", formatCoord(box.LatMax))
	q.Set("lomin", formatCoord(box.LonMin))
	q.Set("lomax", formatCoord(box.LonMax))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/states/all?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("opensky: build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opensky: states request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opensky: states request: unexpected status %s", resp.Status)
	}

	var payload statesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("opensky: decode states: %w", err)
	}

	contacts := make([]atc.Contact, 0, len(payload.States))
	for _, row := range payload.States {
		contact, ok := parseState(row, lat, lon)
		if !ok || contact.DistanceNM > radiusNM {
			continue
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

// authorize attaches credentials to req according to the current mode.
// A token the endpoint refuses to issue downgrades the mode for good; a
// token the endpoint fails to issue (5xx, network fault) leaves this
// request anonymous and keeps the mode so the next poll retries.
func (c *Client) authorize(req *http.Request) {
	switch authMode(c.mode.Load()) {
	case modeOAuth:
		tok, err := c.tokens.Token()
		if err == nil {
			tok.SetAuthHeader(req)
			return
		}
		var rerr *oauth2.RetrieveError
		if !errors.As(err, &rerr) || rerr.Response == nil {
			return
		}
		switch code := rerr.Response.StatusCode; {
		case code == http.StatusBadRequest && c.user != "":
			// Token endpoint did not understand the grant. Some legacy
			// accounts only work with Basic auth.
			c.mode.Store(int32(modeBasic))
			req.SetBasicAuth(c.user, c.pass)
		case code >= 400 && code < 500:
			c.mode.Store(int32(modeAnonymous))
		}
	case modeBasic:
		req.SetBasicAuth(c.user, c.pass)
	}
}

// statesResponse is the wire shape of /states/all. Each state is a
// heterogeneous array; see the col* constants for the indices used.
type statesResponse struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

// parseState converts one state vector into a Contact. Rows without a
// position are dropped.
func parseState(row []any, refLat, refLon float64) (atc.Contact, bool) {
	aircraftLat, latOK := stateFloat(row, colLatitude)
	aircraftLon, lonOK := stateFloat(row, colLongitude)
	if !latOK || !lonOK {
		return atc.Contact{}, false
	}

	seen := time.Now()
	if ts, ok := stateFloat(row, colTimePosition); ok && ts > 0 {
		seen = time.Unix(int64(ts), 0)
	}

	contact := atc.Contact{
		ICAO24:     stateString(row, colICAO24),
		Callsign:   stateString(row, colCallsign),
		Lat:        aircraftLat,
		Lon:        aircraftLon,
		OnGround:   stateBool(row, colOnGround),
		Squawk:     stateString(row, colSquawk),
		Seen:       seen,
		DistanceNM: geo.DistanceNM(refLat, refLon, aircraftLat, aircraftLon),
		BearingDeg: geo.BearingDeg(refLat, refLon, aircraftLat, aircraftLon),
	}
	if alt, ok := stateFloat(row, colGeoAltitude); ok {
		contact.Altitude = int(alt * metersToFeet)
	}
	if spd, ok := stateFloat(row, colVelocity); ok {
		contact.GroundSpeed = int(spd * mpsToKnots)
	}
	if trk, ok := stateFloat(row, colTrueTrack); ok {
		contact.Track = int(trk)
	}
	if vr, ok := stateFloat(row, colVerticalRate); ok {
		contact.VerticalRate = int(vr * mpsToFeetPerMinute)
	}
	return contact, true
}

func stateString(row []any, i int) string {
	if i < len(row) {
		if s, ok := row[i].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func stateFloat(row []any, i int) (float64, bool) {
	if i < len(row) {
		if f, ok := row[i].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func stateBool(row []any, i int) bool {
	if i < len(row) {
		if b, ok := row[i].(bool); ok {
			return b
		}
	}
	return false
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
