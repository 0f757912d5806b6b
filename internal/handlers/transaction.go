package handlers

import (
	"context"
	"errors"
	"net/http"
)

// transactionHandledError indicates the transaction already wrote an HTTP response
// and should simply be rolled back without additional error handling.
type transactionHandledError struct {
	err error
}

func (e *transactionHandledError) Error() string {
	if e == nil || e.err == nil {
		return "transaction handled"
	}
	return e.err.Error()
}

func (e *transactionHandledError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// newTransactionHandledError wraps an error indicating the response has been handled.
func newTransactionHandledError(err error) error {
	return &transactionHandledError{err: err}
}

// isTransactionHandled reports whether the error indicates the HTTP response was handled.
func isTransactionHandled(err error) bool {
	if err == nil {
		return false
	}
	var target *transactionHandledError
	return errors.As(err, &target)
}

// runInTransaction runs fn inside a repository transaction. The request passed to fn
// carries the transaction context so hooks issue their statements through it.
func (h *EntityHandler) runInTransaction(ctx context.Context, r *http.Request, fn func(txCtx context.Context, hookReq *http.Request) error) error {
	return h.repository.Transaction(ctx, func(txCtx context.Context) error {
		return fn(txCtx, r.WithContext(txCtx))
	})
}
