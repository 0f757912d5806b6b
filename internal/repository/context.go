package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

// Context keys for request-scoped values
type contextKey string

const (
	gormTransactionKey contextKey = "adminrest_gorm_transaction"
	sqlTransactionKey  contextKey = "adminrest_sql_transaction"
)

// WithGormTransaction attaches an open GORM transaction to the context.
func WithGormTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, gormTransactionKey, tx)
}

// GormTransactionFromContext retrieves the GORM transaction opened for the current write.
func GormTransactionFromContext(ctx context.Context) (*gorm.DB, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(gormTransactionKey).(*gorm.DB)
	if !ok || tx == nil {
		return nil, false
	}
	return tx, true
}

// WithSQLTransaction attaches an open database/sql transaction to the context.
func WithSQLTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sqlTransactionKey, tx)
}

// SQLTransactionFromContext retrieves the database/sql transaction opened for the current write.
// GORM transactions expose theirs as well.
func SQLTransactionFromContext(ctx context.Context) (*sql.Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	if tx, ok := ctx.Value(sqlTransactionKey).(*sql.Tx); ok && tx != nil {
		return tx, true
	}
	if gormTx, ok := GormTransactionFromContext(ctx); ok && gormTx.Statement != nil {
		if tx, ok := gormTx.Statement.ConnPool.(*sql.Tx); ok && tx != nil {
			return tx, true
		}
	}
	return nil, false
}
