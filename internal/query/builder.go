package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nlstn/go-adminrest/internal/scope"
)

// Queryer is the subset of *sql.DB and *sql.Tx the builder executes against.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Builder accumulates SQL clauses for the database/sql repository.
// Conditions are written with ? placeholders and rewritten for postgres on render.
type Builder struct {
	db       Queryer
	dialect  string
	table    string
	wheres   []whereClause
	selects  []string
	orderBys []string
	limit    *int
	offset   int
	logger   *slog.Logger
}

// whereClause represents a SQL condition with parameterized arguments
type whereClause struct {
	sql  string
	args []interface{}
}

// NewBuilder creates a new query builder for the given database and dialect
func NewBuilder(db Queryer, dialect string) *Builder {
	return &Builder{
		db:      db,
		dialect: dialect,
		logger:  slog.Default(),
	}
}

// WithTable sets the target table for the query
func (qb *Builder) WithTable(table string) *Builder {
	qb.table = table
	return qb
}

// Where adds a WHERE condition to the query
func (qb *Builder) Where(sql string, args ...interface{}) *Builder {
	qb.wheres = append(qb.wheres, whereClause{sql: sql, args: args})
	return qb
}

// WhereSpecification adds every condition of a specification
func (qb *Builder) WhereSpecification(spec scope.Specification) *Builder {
	if spec.IsEmpty() {
		return qb
	}
	if condition, args := spec.SQL(); condition != "" {
		qb.Where(condition, args...)
	}
	return qb
}

// Select sets the SELECT columns for the query
func (qb *Builder) Select(cols ...string) *Builder {
	qb.selects = append(qb.selects, cols...)
	return qb
}

// OrderBy adds an ORDER BY clause to the query
func (qb *Builder) OrderBy(order string) *Builder {
	qb.orderBys = append(qb.orderBys, order)
	return qb
}

// OrderBySort adds one ORDER BY clause per sort criterion
func (qb *Builder) OrderBySort(sort Sort) *Builder {
	for _, o := range sort.Orders {
		direction := "ASC"
		if o.Descending {
			direction = "DESC"
		}
		qb.OrderBy(QuoteIdentifier(qb.dialect, o.Column) + " " + direction)
	}
	return qb
}

// Limit sets the LIMIT for the query
func (qb *Builder) Limit(n int) *Builder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET for the query
func (qb *Builder) Offset(n int) *Builder {
	qb.offset = n
	return qb
}

// WithLogger sets the logger for the query builder
func (qb *Builder) WithLogger(logger *slog.Logger) *Builder {
	if logger != nil {
		qb.logger = logger
	}
	return qb
}

// Clone creates a shallow copy of the query builder
func (qb *Builder) Clone() *Builder {
	clone := &Builder{
		db:       qb.db,
		dialect:  qb.dialect,
		table:    qb.table,
		wheres:   append([]whereClause{}, qb.wheres...),
		selects:  append([]string{}, qb.selects...),
		orderBys: append([]string{}, qb.orderBys...),
		offset:   qb.offset,
		logger:   qb.logger,
	}
	if qb.limit != nil {
		limitCopy := *qb.limit
		clone.limit = &limitCopy
	}
	return clone
}

// ToSQL builds the final SELECT SQL statement with parameterized arguments
func (qb *Builder) ToSQL() (string, []interface{}) {
	var sql strings.Builder

	// SELECT clause
	sql.WriteString("SELECT ")
	if len(qb.selects) > 0 {
		sql.WriteString(strings.Join(qb.selects, ", "))
	} else {
		sql.WriteString("*")
	}

	// FROM clause
	if qb.table != "" {
		sql.WriteString(" FROM ")
		sql.WriteString(QuoteIdentifier(qb.dialect, qb.table))
	}

	args := qb.writeWhere(&sql)

	// ORDER BY clause
	if len(qb.orderBys) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(qb.orderBys, ", "))
	}

	// LIMIT and OFFSET
	if qb.limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT %d", *qb.limit))
	} else if qb.offset > 0 {
		// MySQL and SQLite require LIMIT when OFFSET is used
		switch qb.dialect {
		case "mysql":
			sql.WriteString(" LIMIT 18446744073709551615")
		case "sqlite", "sqlite3":
			sql.WriteString(" LIMIT -1")
		}
	}

	if qb.offset > 0 {
		sql.WriteString(fmt.Sprintf(" OFFSET %d", qb.offset))
	}

	return qb.render(sql.String()), args
}

// ToCountSQL builds a COUNT(*) query based on the current query builder state
func (qb *Builder) ToCountSQL() (string, []interface{}) {
	var sql strings.Builder

	sql.WriteString("SELECT COUNT(*)")

	// FROM clause
	if qb.table != "" {
		sql.WriteString(" FROM ")
		sql.WriteString(QuoteIdentifier(qb.dialect, qb.table))
	}

	args := qb.writeWhere(&sql)

	return qb.render(sql.String()), args
}

// ToInsertSQL builds an INSERT statement for the given columns and values
func (qb *Builder) ToInsertSQL(columns []string, values []interface{}) (string, []interface{}) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = QuoteIdentifier(qb.dialect, col)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdentifier(qb.dialect, qb.table),
		strings.Join(quoted, ", "),
		placeholders(len(columns)))

	return qb.render(query), values
}

// ToUpdateSQL builds an UPDATE statement restricted by the builder's WHERE clauses
func (qb *Builder) ToUpdateSQL(columns []string, values []interface{}) (string, []interface{}) {
	var sql strings.Builder

	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = QuoteIdentifier(qb.dialect, col) + " = ?"
	}

	sql.WriteString("UPDATE ")
	sql.WriteString(QuoteIdentifier(qb.dialect, qb.table))
	sql.WriteString(" SET ")
	sql.WriteString(strings.Join(assignments, ", "))

	args := append([]interface{}{}, values...)
	args = append(args, qb.writeWhere(&sql)...)

	return qb.render(sql.String()), args
}

// ToDeleteSQL builds a DELETE statement restricted by the builder's WHERE clauses
func (qb *Builder) ToDeleteSQL() (string, []interface{}) {
	var sql strings.Builder

	sql.WriteString("DELETE FROM ")
	sql.WriteString(QuoteIdentifier(qb.dialect, qb.table))
	args := qb.writeWhere(&sql)

	return qb.render(sql.String()), args
}

func (qb *Builder) writeWhere(sql *strings.Builder) []interface{} {
	if len(qb.wheres) == 0 {
		return nil
	}

	var args []interface{}
	sql.WriteString(" WHERE ")
	whereClauses := make([]string, 0, len(qb.wheres))
	for _, w := range qb.wheres {
		whereClauses = append(whereClauses, w.sql)
		args = append(args, w.args...)
	}
	sql.WriteString(strings.Join(whereClauses, " AND "))
	return args
}

func (qb *Builder) render(query string) string {
	// Convert placeholders for PostgreSQL ($1, $2, ...)
	if qb.dialect == "postgres" || qb.dialect == "postgresql" || qb.dialect == "pgx" {
		return convertToPostgresPlaceholders(query)
	}
	return query
}

// QueryContext executes the query and returns the result rows
func (qb *Builder) QueryContext(ctx context.Context) (*sql.Rows, error) {
	query, args := qb.ToSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing query", "sql", query, "args", args)
	}

	return qb.db.QueryContext(ctx, query, args...)
}

// CountContext executes the count query and returns the count
func (qb *Builder) CountContext(ctx context.Context) (int64, error) {
	query, args := qb.ToCountSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing count query", "sql", query, "args", args)
	}

	var count int64
	err := qb.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ExecContext runs a statement rendered by one of the To*SQL methods
func (qb *Builder) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if qb.logger != nil {
		qb.logger.Debug("Executing statement", "sql", query, "args", args)
	}
	return qb.db.ExecContext(ctx, query, args...)
}

// QuoteIdentifier quotes a table or column name for the dialect.
func QuoteIdentifier(dialect, name string) string {
	if dialect == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// convertToPostgresPlaceholders converts ? placeholders to $1, $2, ... for PostgreSQL.
// Question marks inside single-quoted literals are left alone.
func convertToPostgresPlaceholders(query string) string {
	var result strings.Builder
	placeholderNum := 1
	inLiteral := false

	for i := 0; i < len(query); i++ {
		switch {
		case query[i] == '\'':
			inLiteral = !inLiteral
			result.WriteByte(query[i])
		case query[i] == '?' && !inLiteral:
			result.WriteString(fmt.Sprintf("$%d", placeholderNum))
			placeholderNum++
		default:
			result.WriteByte(query[i])
		}
	}

	return result.String()
}
