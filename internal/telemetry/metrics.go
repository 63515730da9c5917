package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/wolfeidau/htmlmila"

// Metrics holds the instruments recorded during finalize passes.
type Metrics struct {
	TargetsProcessed metric.Int64Counter
	TargetsFailed    metric.Int64Counter
	BytesSaved       metric.Int64Counter
	TargetDuration   metric.Float64Histogram
	ImportsMinified  metric.Int64Counter
}

// NewMetrics creates the instruments from the current global meter provider.
// Instrument creation errors leave a no-op instrument in place.
func NewMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.TargetsProcessed, _ = meter.Int64Counter(
		"htmlmila.targets.processed.total",
		metric.WithDescription("Total number of targets written"),
		metric.WithUnit("{file}"),
	)

	m.TargetsFailed, _ = meter.Int64Counter(
		"htmlmila.targets.failed.total",
		metric.WithDescription("Total number of targets that failed to process"),
		metric.WithUnit("{file}"),
	)

	m.BytesSaved, _ = meter.Int64Counter(
		"htmlmila.bytes.saved.total",
		metric.WithDescription("Bytes removed by minification across all targets"),
		metric.WithUnit("By"),
	)

	m.TargetDuration, _ = meter.Float64Histogram(
		"htmlmila.target.duration",
		metric.WithDescription("Time taken to read, minify and write one target"),
		metric.WithUnit("ms"),
	)

	m.ImportsMinified, _ = meter.Int64Counter(
		"htmlmila.imports.minified.total",
		metric.WithDescription("Total number of raw HTML imports minified"),
		metric.WithUnit("{module}"),
	)

	return m
}

// Tracer returns the htmlmila tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
