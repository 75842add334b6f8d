// Package observe provides application-wide observability primitives for
// Handraise: OpenTelemetry metrics, tracing helpers, structured logging
// enrichment, and HTTP middleware for the ops endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Handraise metrics.
const meterName = "github.com/classmesh/handraise"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// AnalysisDuration tracks the latency of one analysis pass over a
	// session's transcript window.
	AnalysisDuration metric.Float64Histogram

	// AnalysisBatchSize tracks how many transcript entries each analysis
	// pass consumed.
	AnalysisBatchSize metric.Int64Histogram

	// AlertsCreated counts alerts created by the pipeline. Use with
	// attribute: attribute.String("urgency", ...)
	AlertsCreated metric.Int64Counter

	// AlertTransitions counts lifecycle transitions. Use with attributes:
	//   attribute.String("op", ...), attribute.String("outcome", ...)
	AlertTransitions metric.Int64Counter

	// SweptAlerts counts stale pending alerts expired by the sweeper.
	SweptAlerts metric.Int64Counter

	// PendingAlerts tracks the number of alerts currently pending across
	// all sessions.
	PendingAlerts metric.Int64UpDownCounter

	// HTTPRequestDuration tracks ops endpoint request processing time.
	// Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// in-process analysis pass. Analysis is pure computation over an in-memory
// window, so the buckets skew much lower than typical RPC buckets.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// batchBuckets defines bucket boundaries for transcript batch sizes.
var batchBuckets = []float64{
	0, 1, 5, 10, 25, 50, 100, 250, 500,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AnalysisDuration, err = m.Float64Histogram("handraise.analysis.duration",
		metric.WithDescription("Latency of one transcript analysis pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisBatchSize, err = m.Int64Histogram("handraise.analysis.batch_size",
		metric.WithDescription("Transcript entries consumed per analysis pass."),
		metric.WithExplicitBucketBoundaries(batchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlertsCreated, err = m.Int64Counter("handraise.alerts.created",
		metric.WithDescription("Total help alerts created, by urgency."),
	); err != nil {
		return nil, err
	}
	if met.AlertTransitions, err = m.Int64Counter("handraise.alerts.transitions",
		metric.WithDescription("Total lifecycle transitions by operation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SweptAlerts, err = m.Int64Counter("handraise.alerts.swept",
		metric.WithDescription("Total stale pending alerts auto-dismissed by the sweeper."),
	); err != nil {
		return nil, err
	}
	if met.PendingAlerts, err = m.Int64UpDownCounter("handraise.alerts.pending",
		metric.WithDescription("Number of alerts currently pending across all sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("handraise.http.request.duration",
		metric.WithDescription("Ops endpoint request latency by method and path."),
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

// RecordAnalysis records one analysis pass: its duration in seconds and the
// number of transcript entries it consumed.
func (m *Metrics) RecordAnalysis(ctx context.Context, seconds float64, entries int) {
	m.AnalysisDuration.Record(ctx, seconds)
	m.AnalysisBatchSize.Record(ctx, int64(entries))
}

// RecordAlertCreated records a created alert and bumps the pending gauge.
func (m *Metrics) RecordAlertCreated(ctx context.Context, urgency string) {
	m.AlertsCreated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("urgency", urgency)),
	)
	m.PendingAlerts.Add(ctx, 1)
}

// RecordTransition records a lifecycle transition attempt. leftPending must
// be true when the transition moved an alert out of pending, so the pending
// gauge stays accurate.
func (m *Metrics) RecordTransition(ctx context.Context, op, outcome string, leftPending bool) {
	m.AlertTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		),
	)
	if leftPending {
		m.PendingAlerts.Add(ctx, -1)
	}
}

// RecordClearedPending removes n alerts from the pending gauge when a
// session teardown drops them without a dismiss transition.
func (m *Metrics) RecordClearedPending(ctx context.Context, n int64) {
	m.PendingAlerts.Add(ctx, -n)
}

// RecordSweptAlerts records n alerts expired by the auto-dismiss sweeper.
// The per-alert dismiss transitions are recorded separately via
// [Metrics.RecordTransition]; this counter tracks sweep volume on its own.
func (m *Metrics) RecordSweptAlerts(ctx context.Context, n int64) {
	m.SweptAlerts.Add(ctx, n)
}
