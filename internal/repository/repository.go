package repository

import (
	"context"
	"errors"

	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/scope"
)

// ErrNotFound is returned when no entity has the requested key.
var ErrNotFound = errors.New("entity not found")

// Repository is the persistence surface the handlers need for one entity type.
// Entities are passed as pointers to the registered struct type.
type Repository interface {
	// FindOne loads the entity with the given key or returns ErrNotFound.
	FindOne(ctx context.Context, id interface{}) (interface{}, error)
	// FindAll loads one page of the entities matching spec.
	FindAll(ctx context.Context, spec scope.Specification, page query.PageRequest) (*query.Page, error)
	// FindAllSorted loads every entity matching spec in the given order.
	FindAllSorted(ctx context.Context, spec scope.Specification, sort query.Sort) ([]interface{}, error)
	// Save inserts the entity, or updates it when its key already exists. Generated keys are written back.
	Save(ctx context.Context, entity interface{}) error
	// Delete removes the entity with the given key or returns ErrNotFound.
	Delete(ctx context.Context, id interface{}) error
	// Exists reports whether an entity with the given key is stored.
	Exists(ctx context.Context, id interface{}) (bool, error)
	// Transaction runs fn in a transaction. Repository calls made with the context passed to fn join it.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultOrder sorts by key when the request asked for no order, so pages are stable.
func defaultOrder(sort query.Sort, keyColumn string) query.Sort {
	if sort.IsSorted() {
		return sort
	}
	return query.Sort{Orders: []query.Order{{Column: keyColumn}}}
}
