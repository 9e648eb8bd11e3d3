// Package atc defines the shared types used across all Squawkbox packages.
//
// These types form the lingua franca between the recorder, the transcription
// pool, the surveillance poller, the correlator, and the event bus. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package atc

import (
	"fmt"
	"time"
)

// Contact is a single surveillance observation of one aircraft at one instant.
// Contacts are produced by ADS-B providers, keyed by ICAO24 within a snapshot,
// and retained only while inside the configured search radius.
type Contact struct {
	// ICAO24 is the 24-bit transponder address as six lowercase hex digits.
	// Unique within a snapshot.
	ICAO24 string `json:"icao24"`

	// Callsign is the spoken identifier if broadcast (trimmed, may be empty).
	Callsign string `json:"callsign"`

	// Lat and Lon are WGS-84 degrees.
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`

	// Altitude is geometric altitude in feet.
	Altitude int `json:"altitude"`

	// Track is the true track over ground in degrees, 0–359.
	Track int `json:"track"`

	// GroundSpeed is in knots.
	GroundSpeed int `json:"ground_speed"`

	// VerticalRate is in feet per minute, negative when descending.
	VerticalRate int `json:"vertical_rate"`

	// OnGround reports whether the aircraft is on the surface.
	OnGround bool `json:"on_ground"`

	// Squawk is the 4-digit transponder code, empty when not reported.
	Squawk string `json:"squawk,omitempty"`

	// Seen is the source timestamp of the position report.
	Seen time.Time `json:"timestamp"`

	// DistanceNM and BearingDeg are derived from the configured reference
	// point and recomputed on every refresh.
	DistanceNM float64 `json:"distance_from_airport"`
	BearingDeg float64 `json:"bearing_from_airport"`
}

// String renders the contact the way it appears in log lines.
func (c Contact) String() string {
	id := c.Callsign
	if id == "" {
		id = c.ICAO24
	}
	return fmt.Sprintf("%s: %dft @ %.1fnm brg %03.0f°", id, c.Altitude, c.DistanceNM, c.BearingDeg)
}

// TranscriptSegment is one timed span of recognized speech within a segment
// recording. Times are seconds relative to the start of the audio file.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transmission is a bounded voice utterance on one channel, transcribed to
// text. Records are created by the transcription pool, appended to a channel
// ring buffer under the monitor's mutex, and immutable afterwards.
type Transmission struct {
	// ID is monotonically generated across all channels.
	ID int64 `json:"id"`

	// Channel is the stable channel name, Frequency the dial string in MHz.
	Channel   string `json:"channel"`
	Frequency string `json:"frequency"`

	// Time is the wall-clock instant of transcription.
	Time time.Time `json:"timestamp"`

	// Text is the full transcript.
	Text string `json:"text"`

	// Segments are sorted by start time with End ≥ Start per segment.
	Segments []TranscriptSegment `json:"segments"`

	// AudioSeconds is max(End) − min(Start) over the segments.
	AudioSeconds float64 `json:"audio_duration"`

	// DelaySeconds is max(0, transcription time − recording time).
	DelaySeconds float64 `json:"transcription_delay"`
}

// AudioDuration computes the audio span covered by a segment list.
func AudioDuration(segments []TranscriptSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	minStart, maxEnd := segments[0].Start, segments[0].End
	for _, s := range segments[1:] {
		if s.Start < minStart {
			minStart = s.Start
		}
		if s.End > maxEnd {
			maxEnd = s.End
		}
	}
	if d := maxEnd - minStart; d > 0 {
		return d
	}
	return 0
}

// Sentinel values for Correlation.MatchedICAO.
const (
	// MatchNone means the referenced aircraft is not present in the
	// surveillance data.
	MatchNone = "NO_MATCH"

	// MatchUnclear means the transmission was too garbled to extract an
	// identifier.
	MatchUnclear = "UNCLEAR"
)

// Correlation flag tags.
const (
	FlagMilitary       = "MILITARY"
	FlagNonTransponder = "NON_TRANSPONDER"
	FlagGarbled        = "GARBLED"
	FlagPartialMatch   = "PARTIAL_MATCH"
)

// Correlation is one LLM match decision tying a transmission in the submitted
// batch to a surveillance contact (or to one of the sentinels).
type Correlation struct {
	// TransmissionID is the integer index into the batch that was submitted
	// for correlation, always in [0, batch size).
	TransmissionID int `json:"transmission_id"`

	// ExtractedIdentifier is the callsign or tail number heard in the
	// transmission, normalized (e.g. "DAL2617").
	ExtractedIdentifier string `json:"extracted_identifier"`

	// ExtractionConfidence scores how clearly the identifier was heard.
	ExtractionConfidence float64 `json:"extraction_confidence"`

	// MatchedICAO is the contact's ICAO24, or MatchNone / MatchUnclear.
	MatchedICAO string `json:"matched_icao"`

	// MatchedCallsign is the matched contact's broadcast callsign.
	MatchedCallsign string `json:"matched_callsign"`

	// MatchConfidence scores the association, 0.0–1.0.
	MatchConfidence float64 `json:"match_confidence"`

	// Reasoning is a short free-text explanation.
	Reasoning string `json:"reasoning"`

	// Flags carries zero or more of the Flag* tags.
	Flags []string `json:"flags"`
}

// Alert types.
const (
	AlertMilitary       = "MILITARY"
	AlertNonTransponder = "NON_TRANSPONDER"
	AlertUnknownTraffic = "UNKNOWN_TRAFFIC"
)

// Alert severities.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// Alert is an anomaly raised by the correlator. Alerts below the configured
// confidence threshold are suppressed before they reach any sink.
type Alert struct {
	Type       string  `json:"type"`
	Details    string  `json:"details"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// AnalysisResult is the correlator's outcome for one batch. A zero Summary
// with empty slices is a valid "nothing to report" result.
type AnalysisResult struct {
	Correlations []Correlation `json:"correlations"`
	Alerts       []Alert       `json:"alerts"`
	Summary      string        `json:"summary"`
}
