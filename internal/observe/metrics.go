// Package observe provides application-wide observability primitives for
// Squawkbox: OpenTelemetry metrics and the provider setup that bridges them
// to a Prometheus scrape endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Squawkbox metrics.
const meterName = "github.com/quonset/squawkbox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// CorrelationDuration tracks LLM correlation request latency.
	CorrelationDuration metric.Float64Histogram

	// PollDuration tracks ADS-B surveillance poll latency.
	PollDuration metric.Float64Histogram

	// --- Counters ---

	// TransmissionsRecorded counts voice segments written to disk. Use with
	// attribute: attribute.String("channel", ...)
	TransmissionsRecorded metric.Int64Counter

	// TransmissionsTranscribed counts completed transcriptions. Use with
	// attributes:
	//   attribute.String("channel", ...), attribute.String("status", ...)
	TransmissionsTranscribed metric.Int64Counter

	// CorrelationTokens counts LLM tokens consumed across all correlation
	// requests. Use with attribute: attribute.String("direction", ...) where
	// direction is "prompt" or "response".
	CorrelationTokens metric.Int64Counter

	// Alerts counts correlation alerts raised. Use with attributes:
	//   attribute.String("type", ...), attribute.String("severity", ...)
	Alerts metric.Int64Counter

	// --- Error counters ---

	// PollErrors counts failed ADS-B polls. Use with attribute:
	//   attribute.String("source", ...)
	PollErrors metric.Int64Counter

	// EventsDropped counts events evicted from slow event bus subscribers.
	// Use with attribute: attribute.String("subscriber", ...)
	EventsDropped metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of segments waiting for transcription.
	QueueDepth metric.Int64UpDownCounter

	// BusyWorkers tracks the number of transcription workers mid-job.
	BusyWorkers metric.Int64UpDownCounter

	// Contacts tracks the number of aircraft in the current surveillance
	// snapshot.
	Contacts metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks feed endpoint request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// everything from sub-second polls to multi-minute LLM inference on local
// hardware.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("squawkbox.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorrelationDuration, err = m.Float64Histogram("squawkbox.correlation.duration",
		metric.WithDescription("Latency of LLM correlation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PollDuration, err = m.Float64Histogram("squawkbox.poll.duration",
		metric.WithDescription("Latency of ADS-B surveillance polls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TransmissionsRecorded, err = m.Int64Counter("squawkbox.transmissions.recorded",
		metric.WithDescription("Total voice segments recorded by channel."),
	); err != nil {
		return nil, err
	}
	if met.TransmissionsTranscribed, err = m.Int64Counter("squawkbox.transmissions.transcribed",
		metric.WithDescription("Total transcriptions completed by channel and status."),
	); err != nil {
		return nil, err
	}
	if met.CorrelationTokens, err = m.Int64Counter("squawkbox.correlation.tokens",
		metric.WithDescription("Total LLM tokens consumed by direction."),
	); err != nil {
		return nil, err
	}
	if met.Alerts, err = m.Int64Counter("squawkbox.alerts",
		metric.WithDescription("Total correlation alerts by type and severity."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PollErrors, err = m.Int64Counter("squawkbox.poll.errors",
		metric.WithDescription("Total failed ADS-B polls by source."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("squawkbox.events.dropped",
		metric.WithDescription("Total events evicted from slow bus subscribers."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("squawkbox.queue.depth",
		metric.WithDescription("Segments waiting for transcription."),
	); err != nil {
		return nil, err
	}
	if met.BusyWorkers, err = m.Int64UpDownCounter("squawkbox.workers.busy",
		metric.WithDescription("Transcription workers currently mid-job."),
	); err != nil {
		return nil, err
	}
	if met.Contacts, err = m.Int64UpDownCounter("squawkbox.contacts",
		metric.WithDescription("Aircraft in the current surveillance snapshot."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("squawkbox.http.request.duration",
		metric.WithDescription("Feed endpoint request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRecording is a convenience method that records a recorded voice
// segment on the given channel.
func (m *Metrics) RecordRecording(ctx context.Context, channel string) {
	m.TransmissionsRecorded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("channel", channel)),
	)
}

// RecordTranscription is a convenience method that records a completed
// transcription with its latency and outcome. Status is one of "ok", "empty",
// or "error".
func (m *Metrics) RecordTranscription(ctx context.Context, channel, status string, seconds float64) {
	m.TransmissionsTranscribed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		),
	)
	m.TranscriptionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("channel", channel)),
	)
}

// RecordCorrelation is a convenience method that records a completed
// correlation request: its latency and the tokens it consumed in each
// direction.
func (m *Metrics) RecordCorrelation(ctx context.Context, seconds float64, promptTokens, responseTokens int64) {
	m.CorrelationDuration.Record(ctx, seconds)
	m.CorrelationTokens.Add(ctx, promptTokens,
		metric.WithAttributes(attribute.String("direction", "prompt")),
	)
	m.CorrelationTokens.Add(ctx, responseTokens,
		metric.WithAttributes(attribute.String("direction", "response")),
	)
}

// RecordAlert is a convenience method that records one raised alert with its
// classification.
func (m *Metrics) RecordAlert(ctx context.Context, alertType, severity string) {
	m.Alerts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", alertType),
			attribute.String("severity", severity),
		),
	)
}

// RecordPoll is a convenience method that records one surveillance poll. On
// success the contact gauge is adjusted by the delta between the new and
// previous snapshot sizes.
func (m *Metrics) RecordPoll(ctx context.Context, source string, seconds float64, contactDelta int64, failed bool) {
	m.PollDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("source", source)),
	)
	if failed {
		m.PollErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("source", source)),
		)
		return
	}
	m.Contacts.Add(ctx, contactDelta)
}
