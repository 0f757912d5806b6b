package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nlstn/go-adminrest/internal/metadata"
	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/scope"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRepository stores one entity type through GORM.
type GormRepository struct {
	db       *gorm.DB
	metadata *metadata.EntityMetadata
}

// NewGormRepository creates a repository for the entity described by meta.
func NewGormRepository(db *gorm.DB, meta *metadata.EntityMetadata) *GormRepository {
	return &GormRepository{db: db, metadata: meta}
}

// session returns the request transaction when one is open, the root handle otherwise.
func (r *GormRepository) session(ctx context.Context) *gorm.DB {
	if tx, ok := GormTransactionFromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *GormRepository) model(ctx context.Context, spec scope.Specification) *gorm.DB {
	db := r.session(ctx).Model(r.metadata.NewEntity())
	if spec.IsEmpty() {
		return db
	}
	if condition, args := spec.SQL(); condition != "" {
		db = db.Where(condition, args...)
	}
	return db
}

func (r *GormRepository) keyCondition(id interface{}) clause.Expression {
	return clause.Eq{
		Column: clause.Column{Table: clause.CurrentTable, Name: r.metadata.KeyProperty.ColumnName},
		Value:  id,
	}
}

func applyOrder(db *gorm.DB, sort query.Sort) *gorm.DB {
	for _, o := range sort.Orders {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Descending})
	}
	return db
}

// FindOne loads the entity with the given key.
func (r *GormRepository) FindOne(ctx context.Context, id interface{}) (interface{}, error) {
	entity := r.metadata.NewEntity()
	if err := r.session(ctx).Where(r.keyCondition(id)).Take(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load %s: %w", r.metadata.EntityName, err)
	}
	return entity, nil
}

// FindAll counts the matching entities and loads the requested page.
func (r *GormRepository) FindAll(ctx context.Context, spec scope.Specification, page query.PageRequest) (*query.Page, error) {
	var total int64
	if err := r.model(ctx, spec).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", r.metadata.EntityName, err)
	}

	results := r.metadata.NewSlice()
	if total > int64(page.Offset()) {
		db := applyOrder(r.model(ctx, spec), defaultOrder(page.Sort, r.metadata.KeyProperty.ColumnName))
		if err := db.Offset(page.Offset()).Limit(page.Size).Find(results).Error; err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", r.metadata.EntityName, err)
		}
	}

	return query.NewPage(query.ToSlice(results), page, total), nil
}

// FindAllSorted loads every matching entity.
func (r *GormRepository) FindAllSorted(ctx context.Context, spec scope.Specification, sort query.Sort) ([]interface{}, error) {
	results := r.metadata.NewSlice()
	db := applyOrder(r.model(ctx, spec), defaultOrder(sort, r.metadata.KeyProperty.ColumnName))
	if err := db.Find(results).Error; err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", r.metadata.EntityName, err)
	}
	return query.ToSlice(results), nil
}

// Save inserts or updates the entity.
func (r *GormRepository) Save(ctx context.Context, entity interface{}) error {
	if err := r.session(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to save %s: %w", r.metadata.EntityName, err)
	}
	return nil
}

// Delete removes the entity with the given key.
func (r *GormRepository) Delete(ctx context.Context, id interface{}) error {
	result := r.session(ctx).Where(r.keyCondition(id)).Delete(r.metadata.NewEntity())
	if result.Error != nil {
		return fmt.Errorf("failed to delete %s: %w", r.metadata.EntityName, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists reports whether the key is stored.
func (r *GormRepository) Exists(ctx context.Context, id interface{}) (bool, error) {
	var count int64
	if err := r.model(ctx, nil).Where(r.keyCondition(id)).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check %s: %w", r.metadata.EntityName, err)
	}
	return count > 0, nil
}

// Transaction runs fn in a GORM transaction, or a savepoint when one is already open.
func (r *GormRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.session(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithGormTransaction(ctx, tx))
	})
}
