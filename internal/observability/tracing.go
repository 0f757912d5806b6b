package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names
const (
	SpanEntityRead       = "adminrest.entity.read"
	SpanEntityWrite      = "adminrest.entity.write"
	SpanEntityDelete     = "adminrest.entity.delete"
	SpanCollectionSearch = "adminrest.collection.search"
)

// Attribute keys
const (
	AttrServiceName = attribute.Key("service.name")
	AttrEntity      = attribute.Key("adminrest.entity")
	AttrEntityID    = attribute.Key("adminrest.entity.id")
	AttrScope       = attribute.Key("adminrest.scope")
	AttrOperation   = attribute.Key("adminrest.operation")
	AttrResultCount = attribute.Key("adminrest.result.count")
	AttrTotalCount  = attribute.Key("adminrest.result.total")
	AttrStatusCode  = attribute.Key("http.response.status_code")
)

// Tracer starts spans for the handler operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

func newTracer(tp trace.TracerProvider, serviceName, version string) *Tracer {
	var opts []trace.TracerOption
	if version != "" {
		opts = append(opts, trace.WithInstrumentationVersion(version))
	}
	return &Tracer{
		tracer:      tp.Tracer(instrumentationName, opts...),
		serviceName: serviceName,
	}
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrServiceName.String(t.serviceName))
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindInternal))
}

// StartEntityRead starts the span of a single entity read.
func (t *Tracer) StartEntityRead(ctx context.Context, entity, id string) (context.Context, trace.Span) {
	return t.start(ctx, SpanEntityRead, AttrEntity.String(entity), AttrEntityID.String(id))
}

// StartEntityWrite starts the span of a create or replace. id is empty for creates.
func (t *Tracer) StartEntityWrite(ctx context.Context, entity, id, operation string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrEntity.String(entity), AttrOperation.String(operation)}
	if id != "" {
		attrs = append(attrs, AttrEntityID.String(id))
	}
	return t.start(ctx, SpanEntityWrite, attrs...)
}

// StartEntityDelete starts the span of a delete.
func (t *Tracer) StartEntityDelete(ctx context.Context, entity, id string) (context.Context, trace.Span) {
	return t.start(ctx, SpanEntityDelete, AttrEntity.String(entity), AttrEntityID.String(id))
}

// StartCollectionSearch starts the span of a scoped search.
func (t *Tracer) StartCollectionSearch(ctx context.Context, entity, scope string) (context.Context, trace.Span) {
	return t.start(ctx, SpanCollectionSearch, AttrEntity.String(entity), AttrScope.String(scope))
}

// StartDBStatement starts a span around one database statement.
func (t *Tracer) StartDBStatement(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("adminrest.db.%s", operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.operation.name", operation),
			attribute.String("db.collection.name", table),
		))
}

// RecordResult annotates a search span with the page size and total.
func RecordResult(span trace.Span, count int, total int64) {
	span.SetAttributes(AttrResultCount.Int(count), AttrTotalCount.Int64(total))
}

// RecordError marks the span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordStatus stores the HTTP status on the span and marks server errors.
func RecordStatus(span trace.Span, status int) {
	span.SetAttributes(AttrStatusCode.Int(status))
	if status >= 500 {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
	}
}
