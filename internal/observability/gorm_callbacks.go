package observability

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanInstanceKey   = "adminrest:db_span"
	timingInstanceKey = "adminrest:db_timing"
)

// RegisterGORMCallbacks creates a span for every GORM statement issued with a request context.
// It does nothing unless the config enables detailed DB tracing.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	if db == nil || cfg == nil || cfg.Tracer() == nil {
		return errors.New("gorm handle and initialized config are required")
	}
	if !cfg.DetailedDBTracing() {
		return nil
	}
	tracer := cfg.Tracer()
	logger := cfg.Logger()

	before := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			if tx.Statement == nil || tx.Statement.Context == nil {
				return
			}
			ctx, span := tracer.StartDBStatement(tx.Statement.Context, operation, tx.Statement.Table)
			tx.Statement.Context = ctx
			tx.InstanceSet(spanInstanceKey, span)
		}
	}

	after := func(tx *gorm.DB) {
		value, ok := tx.InstanceGet(spanInstanceKey)
		if !ok {
			return
		}
		span, ok := value.(trace.Span)
		if !ok {
			return
		}
		span.SetAttributes(attribute.Int64("db.rows_affected", tx.RowsAffected))
		if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			RecordError(span, tx.Error)
			logger.Debug("Statement failed", "table", tx.Statement.Table, "error", tx.Error)
		}
		span.End()
	}

	return registerAround(db, "adminrest:trace", before, after)
}

// RegisterServerTimingCallbacks adds a Server-Timing entry for every GORM statement.
func RegisterServerTimingCallbacks(db *gorm.DB) error {
	if db == nil {
		return errors.New("gorm handle is required")
	}

	before := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			if tx.Statement == nil || tx.Statement.Context == nil {
				return
			}
			tx.InstanceSet(timingInstanceKey, StartServerTimingWithDesc(tx.Statement.Context, "db-"+operation, tx.Statement.Table))
		}
	}

	after := func(tx *gorm.DB) {
		if value, ok := tx.InstanceGet(timingInstanceKey); ok {
			if metric, ok := value.(*ServerTimingMetric); ok {
				metric.Stop()
			}
		}
	}

	return registerAround(db, "adminrest:timing", before, after)
}

func registerAround(db *gorm.DB, prefix string, before func(operation string) func(*gorm.DB), after func(*gorm.DB)) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register(prefix+"_before_create", before("create")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register(prefix+"_after_create", after); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register(prefix+"_before_query", before("query")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register(prefix+"_after_query", after); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register(prefix+"_before_update", before("update")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register(prefix+"_after_update", after); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register(prefix+"_before_delete", before("delete")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register(prefix+"_after_delete", after); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register(prefix+"_before_row", before("row")); err != nil {
		return err
	}
	return cb.Row().After("gorm:row").Register(prefix+"_after_row", after)
}
