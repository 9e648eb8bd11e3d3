package opensky

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quonset/squawkbox/pkg/geo"
)

// ---- test helpers ----

// statesBody renders a /states/all response with the given state rows.
func statesBody(t *testing.T, states []any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"time":   1716822000,
		"states": states,
	})
	if err != nil {
		t.Fatalf("marshal states: %v", err)
	}
	return body
}

// fullState builds a 17-column state vector the way OpenSky serves it.
func fullState(icao24 string, callsign any, lat, lon any, geoAltM, velocityMS, trackDeg, verticalMS any, onGround bool, squawk any) []any {
	return []any{
		icao24, callsign, "United States", 1716821990, 1716821995,
		lon, lat, 2900.0, onGround, velocityMS, trackDeg, verticalMS,
		nil, geoAltM, squawk, false, 0,
	}
}

const (
	refLat = 38.8512
	refLon = -77.0402
)

// ---- construction ----

func TestNew_AuthModes(t *testing.T) {
	t.Run("anonymous by default", func(t *testing.T) {
		c := New()
		if got := authMode(c.mode.Load()); got != modeAnonymous {
			t.Errorf("mode = %d, want modeAnonymous", got)
		}
		if got := c.MinInterval(); got != minIntervalAnon {
			t.Errorf("MinInterval() = %v, want %v", got, minIntervalAnon)
		}
	})

	t.Run("basic auth", func(t *testing.T) {
		c := New(WithBasicAuth("user", "pass"))
		if got := authMode(c.mode.Load()); got != modeBasic {
			t.Errorf("mode = %d, want modeBasic", got)
		}
		if got := c.MinInterval(); got != minIntervalAuth {
			t.Errorf("MinInterval() = %v, want %v", got, minIntervalAuth)
		}
	})

	t.Run("client credentials win over basic", func(t *testing.T) {
		c := New(WithBasicAuth("user", "pass"), WithClientCredentials("id", "secret"))
		if got := authMode(c.mode.Load()); got != modeOAuth {
			t.Errorf("mode = %d, want modeOAuth", got)
		}
	})
}

func TestWithPollIntervals(t *testing.T) {
	c := New(WithBasicAuth("user", "pass"), WithPollIntervals(7*time.Second, 20*time.Second))
	if got := c.MinInterval(); got != 7*time.Second {
		t.Errorf("MinInterval() authenticated = %v, want 7s", got)
	}

	c = New(WithPollIntervals(7*time.Second, 20*time.Second))
	if got := c.MinInterval(); got != 20*time.Second {
		t.Errorf("MinInterval() anonymous = %v, want 20s", got)
	}

	// Zero keeps the mode's default.
	c = New(WithPollIntervals(0, 0))
	if got := c.MinInterval(); got != minIntervalAnon {
		t.Errorf("MinInterval() with zero overrides = %v, want %v", got, minIntervalAnon)
	}
}

// ---- area queries ----

func TestClient_AircraftInArea(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("anonymous request sent Authorization = %q", got)
		}
		w.Write(statesBody(t, []any{
			// On the reference point, with known unit conversions.
			fullState("a1b2c3", "DAL2617 ", refLat, refLon, 3048.0, 100.0, 275.9, -5.0, false, "1200"),
			// One degree of latitude away, outside a 30 NM radius.
			fullState("d4e5f6", "UAL100", refLat+1.0, refLon, 3048.0, 100.0, 90.0, 0.0, false, nil),
			// No position report.
			fullState("090909", "N123AB", nil, nil, nil, nil, nil, nil, false, nil),
		}))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	contacts, err := c.AircraftInArea(t.Context(), refLat, refLon, 30)
	if err != nil {
		t.Fatalf("AircraftInArea: unexpected error: %v", err)
	}

	box := geo.Box(refLat, refLon, 30)
	wantQuery := map[string]string{
		"lamin": formatCoord(box.LatMin),
		"lamax": formatCoord(box.LatMax),
		"lomin": formatCoord(box.LonMin),
		"lomax": formatCoord(box.LonMax),
	}
	for k, want := range wantQuery {
		if gotQuery[k] != want {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], want)
		}
	}

	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1 (out-of-radius and positionless rows dropped)", len(contacts))
	}
	got := contacts[0]
	if got.ICAO24 != "a1b2c3" {
		t.Errorf("ICAO24 = %q, want %q", got.ICAO24, "a1b2c3")
	}
	if got.Callsign != "DAL2617" {
		t.Errorf("Callsign = %q, want trailing space trimmed", got.Callsign)
	}
	if got.Altitude != 10000 {
		t.Errorf("Altitude = %d ft, want 10000 (3048 m)", got.Altitude)
	}
	if got.GroundSpeed != 194 {
		t.Errorf("GroundSpeed = %d kt, want 194 (100 m/s)", got.GroundSpeed)
	}
	if got.Track != 275 {
		t.Errorf("Track = %d, want 275", got.Track)
	}
	if got.VerticalRate != -984 {
		t.Errorf("VerticalRate = %d ft/min, want -984 (-5 m/s)", got.VerticalRate)
	}
	if got.Squawk != "1200" {
		t.Errorf("Squawk = %q, want %q", got.Squawk, "1200")
	}
	if got.OnGround {
		t.Error("OnGround = true, want false")
	}
	if got.DistanceNM > 0.001 {
		t.Errorf("DistanceNM = %f, want ~0 for a contact on the reference point", got.DistanceNM)
	}
	if want := time.Unix(1716821990, 0); !got.Seen.Equal(want) {
		t.Errorf("Seen = %v, want %v", got.Seen, want)
	}
}

func TestClient_AircraftInArea_NullStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"time": 1716822000, "states": null}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	contacts, err := c.AircraftInArea(t.Context(), refLat, refLon, 30)
	if err != nil {
		t.Fatalf("AircraftInArea: unexpected error: %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("got %d contacts, want 0 for null states", len(contacts))
	}
}

func TestClient_AircraftInArea_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	if _, err := c.AircraftInArea(t.Context(), refLat, refLon, 30); err == nil {
		t.Fatal("AircraftInArea: expected error for status 429, got nil")
	}
}

// ---- authentication ----

func TestClient_BasicAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			t.Errorf("BasicAuth = %q/%q/%v, want user/pass credentials", user, pass, ok)
		}
		w.Write(statesBody(t, nil))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithBasicAuth("user", "pass"))
	if _, err := c.AircraftInArea(t.Context(), refLat, refLon, 30); err != nil {
		t.Fatalf("AircraftInArea: unexpected error: %v", err)
	}
}

func TestClient_OAuthToken(t *testing.T) {
	tokenCalls := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.Header.Get("Authorization"), "Bearer tok-123"; got != want {
			t.Errorf("Authorization = %q, want %q", got, want)
		}
		w.Write(statesBody(t, nil))
	}))
	defer apiSrv.Close()

	c := New(
		WithBaseURL(apiSrv.URL),
		WithTokenURL(tokenSrv.URL),
		WithClientCredentials("id", "secret"),
	)

	for i := 0; i < 2; i++ {
		if _, err := c.AircraftInArea(t.Context(), refLat, refLon, 30); err != nil {
			t.Fatalf("AircraftInArea call %d: unexpected error: %v", i, err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint hit %d times, want 1 (token must be cached)", tokenCalls)
	}
}

func TestClient_OAuthFallsBackToBasicOn400(t *testing.T) {
	tokenCalls := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != "user" {
			t.Errorf("request not using basic auth fallback (user %q, ok %v)", user, ok)
		}
		w.Write(statesBody(t, nil))
	}))
	defer apiSrv.Close()

	c := New(
		WithBaseURL(apiSrv.URL),
		WithTokenURL(tokenSrv.URL),
		WithClientCredentials("id", "secret"),
		WithBasicAuth("user", "pass"),
	)

	for i := 0; i < 2; i++ {
		if _, err := c.AircraftInArea(t.Context(), refLat, refLon, 30); err != nil {
			t.Fatalf("AircraftInArea call %d: unexpected error: %v", i, err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint hit %d times, want 1 (fallback must stick)", tokenCalls)
	}
	if got := c.MinInterval(); got != minIntervalAuth {
		t.Errorf("MinInterval() after basic fallback = %v, want %v", got, minIntervalAuth)
	}
}

func TestClient_OAuthDegradesToAnonymousOn4xx(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("degraded request sent Authorization = %q, want none", got)
		}
		w.Write(statesBody(t, nil))
	}))
	defer apiSrv.Close()

	c := New(
		WithBaseURL(apiSrv.URL),
		WithTokenURL(tokenSrv.URL),
		WithClientCredentials("id", "secret"),
	)

	if _, err := c.AircraftInArea(t.Context(), refLat, refLon, 30); err != nil {
		t.Fatalf("AircraftInArea: unexpected error: %v", err)
	}
	if got := c.MinInterval(); got != minIntervalAnon {
		t.Errorf("MinInterval() after degrade = %v, want %v", got, minIntervalAnon)
	}
}

func TestClient_OAuthProceedsAnonymouslyOnServerError(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer tokenSrv.Close()

	apiCalls := 0
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls++
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("request after token 5xx sent Authorization = %q, want none", got)
		}
		w.Write(statesBody(t, nil))
	}))
	defer apiSrv.Close()

	c := New(
		WithBaseURL(apiSrv.URL),
		WithTokenURL(tokenSrv.URL),
		WithClientCredentials("id", "secret"),
	)

	if _, err := c.AircraftInArea(t.Context(), refLat, refLon, 30); err != nil {
		t.Fatalf("AircraftInArea: unexpected error: %v", err)
	}
	if apiCalls != 1 {
		t.Fatalf("states endpoint hit %d times, want 1", apiCalls)
	}
	// A flaky token endpoint must not burn the credentials: the next poll
	// retries OAuth.
	if got := authMode(c.mode.Load()); got != modeOAuth {
		t.Errorf("mode after 5xx = %d, want modeOAuth retained", got)
	}
}

func TestClient_OAuthProceedsAnonymouslyOnTokenNetworkError(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	tokenSrv.Close() // connection refused from here on

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("request after token network error sent Authorization = %q, want none", got)
		}
		w.Write(statesBody(t, nil))
	}))
	defer apiSrv.Close()

	c := New(
		WithBaseURL(apiSrv.URL),
		WithTokenURL(tokenSrv.URL),
		WithClientCredentials("id", "secret"),
	)

	if _, err := c.AircraftInArea(t.Context(), refLat, refLon, 30); err != nil {
		t.Fatalf("AircraftInArea: unexpected error: %v", err)
	}
	if got := authMode(c.mode.Load()); got != modeOAuth {
		t.Errorf("mode after network error = %d, want modeOAuth retained", got)
	}
}

// ---- unit conversions ----

func TestParseState_Conversions(t *testing.T) {
	row := fullState("abcdef", "TEST", refLat, refLon, 1000.0, 50.0, 359.9, 2.54, true, "7700")
	contact, ok := parseState(row, refLat, refLon)
	if !ok {
		t.Fatal("parseState: ok = false, want true")
	}
	if want := int(math.Trunc(1000 * metersToFeet)); contact.Altitude != want {
		t.Errorf("Altitude = %d, want %d", contact.Altitude, want)
	}
	if want := int(math.Trunc(50 * mpsToKnots)); contact.GroundSpeed != want {
		t.Errorf("GroundSpeed = %d, want %d", contact.GroundSpeed, want)
	}
	if want := int(math.Trunc(2.54 * mpsToFeetPerMinute)); contact.VerticalRate != want {
		t.Errorf("VerticalRate = %d, want %d", contact.VerticalRate, want)
	}
	if !contact.OnGround {
		t.Error("OnGround = false, want true")
	}
	if contact.Squawk != "7700" {
		t.Errorf("Squawk = %q, want %q", contact.Squawk, "7700")
	}
}
