// Package observe carries the observability surface of a synthesis run:
// OpenTelemetry instruments, trace-aware logging, and the middleware for the
// operational HTTP endpoints.
//
// Everything records through the OTel API; [InitProvider] bridges the metric
// side into a Prometheus exporter so a long run can be watched on /metrics.
// Production code shares the [DefaultMetrics] instance; tests build their own
// via [NewMetrics] with a private [metric.MeterProvider] so runs of the suite
// never bleed samples into each other.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope every voicesync instrument lives
// under.
const meterName = "github.com/withleedh/learning-youtube-sub000"

// Metrics bundles the instruments the pipeline records into. OTel instruments
// synchronise internally, so one instance is shared across all workers.
type Metrics struct {
	// --- Histograms ---

	// SynthesisDuration tracks the latency of a single provider synthesis
	// call. Each retry attempt records its own sample. Use with attribute:
	//   attribute.String("provider", ...)
	SynthesisDuration metric.Float64Histogram

	// AudioSeconds tracks the playback length of synthesized clips. Use with
	// attribute: attribute.String("speed", ...)
	AudioSeconds metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by classified kind. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// RetryAttempts counts attempts beyond the first. Use with attribute:
	//   attribute.String("provider", ...)
	RetryAttempts metric.Int64Counter

	// KeyRotations counts API key pool rotations after quota exhaustion.
	KeyRotations metric.Int64Counter

	// SynthesisUnits counts finished units (sentence × speed). Use with
	// attribute: attribute.String("status", ...) — "ok", "failed", "skipped".
	SynthesisUnits metric.Int64Counter

	// --- Gauges ---

	// ActiveSynthesis tracks the number of in-flight provider calls.
	ActiveSynthesis metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks operational endpoint request processing
	// time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// TTS API calls, which run from sub-second cache hits to slow websocket
// sessions.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// audioBuckets defines bucket boundaries (in seconds) for clip lengths.
var audioBuckets = []float64{
	0.5, 1, 2, 5, 10, 20, 30, 60,
}

// NewMetrics builds every instrument on a meter from the given provider.
// Instrument creation errors are collected and returned joined, so a single
// bad registration does not mask the rest.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var errs []error

	seconds := func(name, desc string, buckets []float64) metric.Float64Histogram {
		opts := []metric.Float64HistogramOption{
			metric.WithDescription(desc),
			metric.WithUnit("s"),
		}
		if buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
		}
		h, err := meter.Float64Histogram(name, opts...)
		if err != nil {
			errs = append(errs, err)
		}
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, err)
		}
		return c
	}

	met := &Metrics{
		SynthesisDuration: seconds("voicesync.synthesis.duration",
			"Latency of a single provider synthesis call.", latencyBuckets),
		AudioSeconds: seconds("voicesync.audio.seconds",
			"Playback length of synthesized clips.", audioBuckets),
		HTTPRequestDuration: seconds("voicesync.http.request.duration",
			"Operational endpoint request latency by method and path.", nil),

		ProviderRequests: counter("voicesync.provider.requests",
			"Total provider API requests by provider and status."),
		ProviderErrors: counter("voicesync.provider.errors",
			"Total provider errors by provider and classified kind."),
		RetryAttempts: counter("voicesync.retry.attempts",
			"Total retry attempts beyond the first, by provider."),
		KeyRotations: counter("voicesync.keypool.rotations",
			"Total API key rotations following quota exhaustion."),
		SynthesisUnits: counter("voicesync.units",
			"Total finished synthesis units by status."),
	}

	var err error
	if met.ActiveSynthesis, err = meter.Int64UpDownCounter("voicesync.active_synthesis",
		metric.WithDescription("Number of in-flight provider synthesis calls."),
	); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared instance, built against the global meter
// provider on first use. Call [InitProvider] first so the instruments bind to
// the real provider rather than the no-op default. Panics when instrument
// registration fails, which the global provider never does.
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

// Attr shortens [attribute.String] at recording sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRetry records a retry attempt beyond the first.
func (m *Metrics) RecordRetry(ctx context.Context, provider string) {
	m.RetryAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordKeyRotation records an API key rotation.
func (m *Metrics) RecordKeyRotation(ctx context.Context, provider string) {
	m.KeyRotations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordUnit records a finished synthesis unit with the given status.
func (m *Metrics) RecordUnit(ctx context.Context, status string) {
	m.SynthesisUnits.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
