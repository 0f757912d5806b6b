package adminrest

import (
	"context"
	"database/sql"

	"github.com/nlstn/go-adminrest/internal/repository"
	"gorm.io/gorm"
)

// TransactionFromContext returns the GORM transaction of the current write.
// Hooks receive it through their context argument; statements issued on it commit or
// roll back together with the entity change.
func TransactionFromContext(ctx context.Context) (*gorm.DB, bool) {
	return repository.GormTransactionFromContext(ctx)
}

// SQLTransactionFromContext returns the database/sql transaction of the current write.
// It works for services created with NewServiceWithAdapter as well as GORM backed ones.
func SQLTransactionFromContext(ctx context.Context) (*sql.Tx, bool) {
	return repository.SQLTransactionFromContext(ctx)
}
