package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricRequests        = "adminrest.requests"
	MetricRequestDuration = "adminrest.request.duration"
)

// Metrics holds the request instruments.
type Metrics struct {
	requests *requestInstruments
}

type requestInstruments struct {
	count    metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider, version string) (*Metrics, error) {
	var opts []metric.MeterOption
	if version != "" {
		opts = append(opts, metric.WithInstrumentationVersion(version))
	}
	meter := mp.Meter(instrumentationName, opts...)

	count, err := meter.Int64Counter(MetricRequests,
		metric.WithDescription("Number of handled requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(MetricRequestDuration,
		metric.WithDescription("Duration of handled requests"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Metrics{requests: &requestInstruments{count: count, duration: duration}}, nil
}

// RecordRequest counts one request and records its duration.
func (m *Metrics) RecordRequest(ctx context.Context, entity, operation string, status int, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	attrs := metric.WithAttributes(
		AttrEntity.String(entity),
		AttrOperation.String(operation),
		AttrStatusCode.Int(status),
	)
	m.requests.count.Add(ctx, 1, attrs)
	m.requests.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}
