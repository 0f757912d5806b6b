package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestConfig(t *testing.T, opts ...Option) (*Config, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	opts = append([]Option{WithTracerProvider(tp), WithMeterProvider(mp), WithServiceName("test-service")}, opts...)
	cfg := NewConfig(opts...)
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return cfg, recorder, reader
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.serviceName != DefaultServiceName {
		t.Errorf("serviceName = %q, want %q", cfg.serviceName, DefaultServiceName)
	}
	if cfg.Tracer() != nil || cfg.Metrics() != nil {
		t.Error("instruments must not exist before Initialize")
	}
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("Initialize with global providers failed: %v", err)
	}
	if cfg.Tracer() == nil || cfg.Metrics() == nil {
		t.Error("instruments missing after Initialize")
	}
	if cfg.ServerTimingEnabled() || cfg.DetailedDBTracing() {
		t.Error("optional features enabled by default")
	}
}

func TestTracerSpans(t *testing.T) {
	cfg, recorder, _ := newTestConfig(t)
	ctx := context.Background()

	_, span := cfg.Tracer().StartEntityRead(ctx, "customer", "7")
	span.End()
	_, span = cfg.Tracer().StartCollectionSearch(ctx, "customer", "vip")
	RecordResult(span, 2, 10)
	span.End()
	_, span = cfg.Tracer().StartEntityWrite(ctx, "customer", "", "create")
	RecordError(span, errors.New("boom"))
	span.End()
	_, span = cfg.Tracer().StartEntityDelete(ctx, "customer", "7")
	RecordStatus(span, http.StatusNoContent)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 4 {
		t.Fatalf("recorded %d spans, want 4", len(spans))
	}

	names := []string{SpanEntityRead, SpanCollectionSearch, SpanEntityWrite, SpanEntityDelete}
	for i, name := range names {
		if spans[i].Name() != name {
			t.Errorf("span[%d] = %q, want %q", i, spans[i].Name(), name)
		}
	}

	attrs := map[string]string{}
	for _, kv := range spans[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[string(AttrScope)] != "vip" || attrs[string(AttrTotalCount)] != "10" || attrs[string(AttrServiceName)] != "test-service" {
		t.Errorf("search span attributes = %v", attrs)
	}
	if len(spans[2].Events()) == 0 {
		t.Error("error was not recorded on the write span")
	}
}

func TestMetricsRecordRequest(t *testing.T) {
	cfg, _, reader := newTestConfig(t)

	cfg.Metrics().RecordRequest(context.Background(), "customer", "read", http.StatusOK, 5*time.Millisecond)
	cfg.Metrics().RecordRequest(context.Background(), "customer", "read", http.StatusOK, 7*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name != MetricRequests {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
				t.Errorf("%s data = %+v", MetricRequests, m.Data)
			}
		}
	}
	if !found[MetricRequests] || !found[MetricRequestDuration] {
		t.Fatalf("metrics collected = %v", found)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordRequest(context.Background(), "x", "y", 200, time.Second)
}

func TestServerTiming(t *testing.T) {
	handler := ServerTimingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metric := StartServerTimingWithDesc(r.Context(), "db-query", "customers")
		time.Sleep(time.Millisecond)
		metric.Stop()
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rest/customer", nil))

	header := w.Header().Get("Server-Timing")
	if !strings.Contains(header, "db-query") {
		t.Fatalf("Server-Timing = %q, want db-query entry", header)
	}

	// Without middleware state the metric is a no-op
	StartServerTiming(context.Background(), "noop").Stop()
	var zero *ServerTimingMetric
	zero.Stop()
}

type traced struct {
	ID   uint
	Name string
}

func TestRegisterGORMCallbacks(t *testing.T) {
	cfg, recorder, _ := newTestConfig(t, WithDetailedDBTracing())

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&traced{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("RegisterGORMCallbacks failed: %v", err)
	}
	if err := RegisterServerTimingCallbacks(db); err != nil {
		t.Fatalf("RegisterServerTimingCallbacks failed: %v", err)
	}

	ctx := context.Background()
	if err := db.WithContext(ctx).Create(&traced{Name: "a"}).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	var rows []traced
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "adminrest.db.create") || !strings.Contains(joined, "adminrest.db.query") {
		t.Fatalf("spans = %v, want create and query statements", names)
	}

	if err := RegisterGORMCallbacks(nil, cfg); err == nil {
		t.Error("expected error for nil database")
	}
}

func TestRegisterGORMCallbacksDisabled(t *testing.T) {
	cfg, recorder, _ := newTestConfig(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&traced{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("RegisterGORMCallbacks failed: %v", err)
	}
	if err := db.WithContext(context.Background()).Create(&traced{Name: "a"}).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if spans := recorder.Ended(); len(spans) != 0 {
		t.Fatalf("recorded %d spans without detailed DB tracing", len(spans))
	}
}
