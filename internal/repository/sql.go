package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/nlstn/go-adminrest/internal/conv"
	"github.com/nlstn/go-adminrest/internal/metadata"
	"github.com/nlstn/go-adminrest/internal/query"
	"github.com/nlstn/go-adminrest/internal/scope"
)

// SQLRepository stores one entity type through database/sql.
// Rows are mapped to struct fields by column name.
type SQLRepository struct {
	db       *sql.DB
	dialect  string
	metadata *metadata.EntityMetadata
	logger   *slog.Logger
}

// NewSQLRepository creates a repository for the entity described by meta.
// Dialect is one of sqlite, postgres or mysql.
func NewSQLRepository(db *sql.DB, dialect string, meta *metadata.EntityMetadata) *SQLRepository {
	return &SQLRepository{
		db:       db,
		dialect:  dialect,
		metadata: meta,
		logger:   slog.Default(),
	}
}

// SetLogger sets the logger used for statement tracing.
func (r *SQLRepository) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

func (r *SQLRepository) queryer(ctx context.Context) query.Queryer {
	if tx, ok := SQLTransactionFromContext(ctx); ok {
		return tx
	}
	return r.db
}

func (r *SQLRepository) builder(ctx context.Context) *query.Builder {
	return query.NewBuilder(r.queryer(ctx), r.dialect).
		WithTable(r.metadata.TableName).
		WithLogger(r.logger)
}

func (r *SQLRepository) quote(column string) string {
	return query.QuoteIdentifier(r.dialect, column)
}

func (r *SQLRepository) keyCondition() string {
	return r.quote(r.metadata.KeyProperty.ColumnName) + " = ?"
}

func (r *SQLRepository) selectColumns() []string {
	props := r.metadata.ColumnProperties()
	cols := make([]string, len(props))
	for i, prop := range props {
		cols[i] = r.quote(prop.ColumnName)
	}
	return cols
}

// FindOne loads the entity with the given key.
func (r *SQLRepository) FindOne(ctx context.Context, id interface{}) (interface{}, error) {
	rows, err := r.builder(ctx).
		Select(r.selectColumns()...).
		Where(r.keyCondition(), id).
		Limit(1).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", r.metadata.EntityName, err)
	}

	items, err := r.scanAll(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// FindAll counts the matching entities and loads the requested page.
func (r *SQLRepository) FindAll(ctx context.Context, spec scope.Specification, page query.PageRequest) (*query.Page, error) {
	base := r.builder(ctx).WhereSpecification(spec)

	total, err := base.Clone().CountContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", r.metadata.EntityName, err)
	}

	if total <= int64(page.Offset()) {
		return query.NewPage(nil, page, total), nil
	}

	rows, err := base.
		Select(r.selectColumns()...).
		OrderBySort(defaultOrder(page.Sort, r.metadata.KeyProperty.ColumnName)).
		Limit(page.Size).
		Offset(page.Offset()).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", r.metadata.EntityName, err)
	}

	items, err := r.scanAll(rows)
	if err != nil {
		return nil, err
	}
	return query.NewPage(items, page, total), nil
}

// FindAllSorted loads every matching entity.
func (r *SQLRepository) FindAllSorted(ctx context.Context, spec scope.Specification, sort query.Sort) ([]interface{}, error) {
	rows, err := r.builder(ctx).
		Select(r.selectColumns()...).
		WhereSpecification(spec).
		OrderBySort(defaultOrder(sort, r.metadata.KeyProperty.ColumnName)).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", r.metadata.EntityName, err)
	}
	return r.scanAll(rows)
}

// Save updates the entity when its key is stored and inserts it otherwise.
// A zero key is left to the database and read back after the insert.
func (r *SQLRepository) Save(ctx context.Context, entity interface{}) error {
	key, ok := r.metadata.KeyValue(entity)
	if !ok {
		return fmt.Errorf("cannot save %T as %s", entity, r.metadata.EntityName)
	}

	generated := reflect.ValueOf(key).IsZero()
	if !generated {
		updated, err := r.update(ctx, entity, key)
		if err != nil || updated {
			return err
		}
	}
	return r.insert(ctx, entity, generated)
}

func (r *SQLRepository) columnValues(entity interface{}, includeKey bool) ([]string, []interface{}) {
	props := r.metadata.ColumnProperties()
	columns := make([]string, 0, len(props))
	values := make([]interface{}, 0, len(props))
	for _, prop := range props {
		if prop.IsKey && !includeKey {
			continue
		}
		field, ok := r.metadata.FieldValue(entity, prop)
		if !ok {
			continue
		}
		columns = append(columns, prop.ColumnName)
		values = append(values, field.Interface())
	}
	return columns, values
}

func (r *SQLRepository) update(ctx context.Context, entity interface{}, key interface{}) (bool, error) {
	columns, values := r.columnValues(entity, false)
	if len(columns) == 0 {
		return r.Exists(ctx, key)
	}

	b := r.builder(ctx).Where(r.keyCondition(), key)
	stmt, args := b.ToUpdateSQL(columns, values)
	result, err := b.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", r.metadata.EntityName, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", r.metadata.EntityName, err)
	}
	if affected > 0 {
		return true, nil
	}
	// MySQL reports zero affected rows when nothing changed
	return r.Exists(ctx, key)
}

func (r *SQLRepository) insert(ctx context.Context, entity interface{}, generated bool) error {
	columns, values := r.columnValues(entity, !generated)
	b := r.builder(ctx)
	stmt, args := b.ToInsertSQL(columns, values)

	if !generated {
		if _, err := b.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.metadata.EntityName, err)
		}
		return nil
	}

	keyField, ok := r.metadata.FieldValue(entity, r.metadata.KeyProperty)
	if !ok || !keyField.CanAddr() {
		return fmt.Errorf("cannot assign generated key to %T", entity)
	}

	if r.dialect == "postgres" || r.dialect == "postgresql" || r.dialect == "pgx" {
		stmt += " RETURNING " + r.quote(r.metadata.KeyProperty.ColumnName)
		r.logger.Debug("Executing statement", "sql", stmt, "args", args)
		if err := r.queryer(ctx).QueryRowContext(ctx, stmt, args...).Scan(keyField.Addr().Interface()); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.metadata.EntityName, err)
		}
		return nil
	}

	result, err := b.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", r.metadata.EntityName, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read generated key of %s: %w", r.metadata.EntityName, err)
	}
	return r.metadata.SetKeyValue(entity, id)
}

// Delete removes the entity with the given key.
func (r *SQLRepository) Delete(ctx context.Context, id interface{}) error {
	b := r.builder(ctx).Where(r.keyCondition(), id)
	stmt, args := b.ToDeleteSQL()
	result, err := b.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.metadata.EntityName, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.metadata.EntityName, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists reports whether the key is stored.
func (r *SQLRepository) Exists(ctx context.Context, id interface{}) (bool, error) {
	count, err := r.builder(ctx).Where(r.keyCondition(), id).CountContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", r.metadata.EntityName, err)
	}
	return count > 0, nil
}

// Transaction runs fn in a database/sql transaction unless one is already open.
func (r *SQLRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := SQLTransactionFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(WithSQLTransaction(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// scanAll reads every row into a new entity and closes rows.
func (r *SQLRepository) scanAll(rows *sql.Rows) ([]interface{}, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	byColumn := make(map[string]*metadata.PropertyMetadata)
	for _, prop := range r.metadata.ColumnProperties() {
		byColumn[prop.ColumnName] = prop
	}

	items := make([]interface{}, 0)
	for rows.Next() {
		entity := r.metadata.NewEntity()
		dest := make([]interface{}, len(columns))
		for i, column := range columns {
			prop, ok := byColumn[column]
			if !ok {
				dest[i] = new(interface{})
				continue
			}
			field, ok := r.metadata.FieldValue(entity, prop)
			if !ok {
				dest[i] = new(interface{})
				continue
			}
			dest[i] = &fieldScanner{field: field}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.metadata.EntityName, err)
		}
		items = append(items, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.metadata.EntityName, err)
	}
	return items, nil
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// fieldScanner assigns a driver value to a struct field.
// NULL becomes the zero value; strings and bytes are parsed for typed fields.
type fieldScanner struct {
	field reflect.Value
}

func (s *fieldScanner) Scan(src interface{}) error {
	if s.field.CanAddr() && s.field.Addr().Type().Implements(scannerType) {
		return s.field.Addr().Interface().(sql.Scanner).Scan(src)
	}

	if src == nil {
		s.field.Set(reflect.Zero(s.field.Type()))
		return nil
	}

	if b, ok := src.([]byte); ok {
		src = string(b)
	}

	target := s.field.Type()
	if target.Kind() == reflect.Ptr {
		ptr := reflect.New(target.Elem())
		if err := (&fieldScanner{field: ptr.Elem()}).Scan(src); err != nil {
			return err
		}
		s.field.Set(ptr)
		return nil
	}

	value := reflect.ValueOf(src)
	if value.Type().AssignableTo(target) {
		s.field.Set(value)
		return nil
	}

	if text, ok := src.(string); ok {
		converted, err := conv.Convert(text, target)
		if err != nil {
			return err
		}
		s.field.Set(reflect.ValueOf(converted))
		return nil
	}

	if n, ok := src.(int64); ok && target.Kind() == reflect.Bool {
		s.field.SetBool(n != 0)
		return nil
	}

	if value.Type().ConvertibleTo(target) && value.Kind() != reflect.String && target.Kind() != reflect.String {
		s.field.Set(value.Convert(target))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", src, target)
}
