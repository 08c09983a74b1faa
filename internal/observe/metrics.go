// Package observe provides application-wide observability primitives for
// voxbridge: OpenTelemetry metrics and tracing, with a Prometheus exporter
// bridge so metrics stay scrapeable at /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxbridge metrics.
const meterName = "github.com/voxbridge/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the relay.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks transcription latency from first frame to final.
	ASRDuration metric.Float64Histogram

	// MTDuration tracks translation call latency.
	MTDuration metric.Float64Histogram

	// TTSDuration tracks synthesis latency to first audio chunk.
	TTSDuration metric.Float64Histogram

	// PipelineDuration tracks total utterance latency, gate fire to last
	// audio chunk routed to the partner.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("stage", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Utterances counts gate firings. Use with attribute:
	//   attribute.String("language", ...)
	Utterances metric.Int64Counter

	// CacheHits counts synthesis cache hits. Use with attribute:
	//   attribute.String("kind", "exact"|"near")
	CacheHits metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("stage", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of Active sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveParticipants tracks the number of connected participants.
	ActiveParticipants metric.Int64UpDownCounter

	// WaitingParticipants tracks the number of participants in pairing
	// queues.
	WaitingParticipants metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ASRDuration, err = m.Float64Histogram("voxbridge.asr.duration",
		metric.WithDescription("Latency of speech recognition per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MTDuration, err = m.Float64Histogram("voxbridge.mt.duration",
		metric.WithDescription("Latency of translation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxbridge.tts.duration",
		metric.WithDescription("Latency of synthesis to first audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("voxbridge.pipeline.duration",
		metric.WithDescription("End-to-end utterance latency, gate fire to partner audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("voxbridge.provider.requests",
		metric.WithDescription("Total provider API requests by provider, stage, and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voxbridge.utterances",
		metric.WithDescription("Total utterances committed by the gate, by language."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("voxbridge.synthesis.cache_hits",
		metric.WithDescription("Synthesis cache hits by kind (exact, near)."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxbridge.provider.errors",
		metric.WithDescription("Total provider errors by provider and stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxbridge.active_sessions",
		metric.WithDescription("Number of Active sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveParticipants, err = m.Int64UpDownCounter("voxbridge.active_participants",
		metric.WithDescription("Number of connected participants."),
	); err != nil {
		return nil, err
	}
	if met.WaitingParticipants, err = m.Int64UpDownCounter("voxbridge.waiting_participants",
		metric.WithDescription("Number of participants waiting for a partner."),
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, stage, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, stage string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("stage", stage),
		),
	)
}

// RecordUtterance records a gate firing.
func (m *Metrics) RecordUtterance(ctx context.Context, language string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("language", language)),
	)
}

// RecordCacheHit records a synthesis cache hit of the given kind.
func (m *Metrics) RecordCacheHit(ctx context.Context, kind string) {
	m.CacheHits.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
