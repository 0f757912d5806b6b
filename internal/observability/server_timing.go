package observability

import (
	"context"
	"net/http"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric measures one Server-Timing entry. The zero value is a no-op.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// Stop ends the measurement.
func (m *ServerTimingMetric) Stop() {
	if m == nil || m.metric == nil {
		return
	}
	m.metric.Stop()
}

// StartServerTiming starts a metric when the request carries Server-Timing state.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return StartServerTimingWithDesc(ctx, name, "")
}

// StartServerTimingWithDesc starts a metric with a description.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	if ctx == nil {
		return &ServerTimingMetric{}
	}
	header := servertiming.FromContext(ctx)
	if header == nil {
		return &ServerTimingMetric{}
	}
	metric := header.NewMetric(name)
	if description != "" {
		metric = metric.WithDesc(description)
	}
	return &ServerTimingMetric{metric: metric.Start()}
}

// ServerTimingMiddleware adds the Server-Timing header to responses of next.
func ServerTimingMiddleware(next http.Handler) http.Handler {
	return servertiming.Middleware(next, nil)
}
