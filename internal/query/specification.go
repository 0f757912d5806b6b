package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/nlstn/go-adminrest/internal/conv"
	"github.com/nlstn/go-adminrest/internal/metadata"
	"github.com/nlstn/go-adminrest/internal/scope"
)

// DefaultMaxInClauseSize limits the number of values one parameter may carry.
const DefaultMaxInClauseSize = 1000

// FilterError reports a request parameter that cannot be turned into a condition.
type FilterError struct {
	Parameter string
	Err       error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid value for parameter '%s': %v", e.Parameter, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// SpecificationCreator turns request parameters into a filter specification.
type SpecificationCreator struct {
	// MaxInClauseSize bounds multi-valued parameters; zero means DefaultMaxInClauseSize.
	MaxInClauseSize int
	// Dialect selects the identifier quoting of generated conditions.
	Dialect string
}

// ToSpecification builds one condition per request parameter that names a filterable
// property. Paging parameters, unknown parameters and empty values are ignored.
// Parameters are visited in name order so the generated SQL is stable.
func (c SpecificationCreator) ToSpecification(meta *metadata.EntityMetadata, params url.Values) (scope.Specification, error) {
	if meta == nil || len(params) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var spec scope.Specification
	for _, name := range names {
		if IsPagingParameter(name) {
			continue
		}

		prop := meta.FindProperty(name)
		if prop == nil || !prop.IsFilterable {
			continue
		}

		values := nonEmpty(params[name])
		if len(values) == 0 {
			continue
		}

		limit := c.MaxInClauseSize
		if limit <= 0 {
			limit = DefaultMaxInClauseSize
		}
		if len(values) > limit {
			return nil, &FilterError{Parameter: name, Err: fmt.Errorf("too many values (%d > %d)", len(values), limit)}
		}

		condition, err := buildCondition(QuoteIdentifier(c.Dialect, prop.ColumnName), prop, values)
		if err != nil {
			return nil, &FilterError{Parameter: name, Err: err}
		}
		spec = append(spec, condition)
	}

	return spec, nil
}

// buildCondition matches prop against values; column is the quoted column name.
func buildCondition(column string, prop *metadata.PropertyMetadata, values []string) (scope.QueryScope, error) {
	switch {
	case conv.IsString(prop.Type):
		return likeCondition(column, values), nil
	case conv.IsTime(prop.Type):
		return timeCondition(column, prop, values)
	}

	args := make([]interface{}, 0, len(values))
	for _, raw := range values {
		value, err := conv.Convert(raw, prop.Type)
		if err != nil {
			return scope.QueryScope{}, err
		}
		args = append(args, value)
	}

	if len(args) == 1 {
		return scope.QueryScope{Condition: fmt.Sprintf("%s = ?", column), Args: args}, nil
	}
	return scope.QueryScope{
		Condition: fmt.Sprintf("%s IN (%s)", column, placeholders(len(args))),
		Args:      args,
	}, nil
}

// likeCondition matches any of the values as a case-insensitive substring.
func likeCondition(column string, values []string) scope.QueryScope {
	parts := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values))
	for _, value := range values {
		parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", column))
		args = append(args, "%"+escapeLike(strings.ToLower(value))+"%")
	}
	return scope.QueryScope{Condition: strings.Join(parts, " OR "), Args: args}
}

// timeCondition matches whole days for date-only values and exact instants otherwise.
func timeCondition(column string, prop *metadata.PropertyMetadata, values []string) (scope.QueryScope, error) {
	parts := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values)*2)
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if day, err := time.Parse("2006-01-02", raw); err == nil {
			parts = append(parts, fmt.Sprintf("(%s >= ? AND %s < ?)", column, column))
			args = append(args, day, day.AddDate(0, 0, 1))
			continue
		}
		value, err := conv.Convert(raw, prop.Type)
		if err != nil {
			return scope.QueryScope{}, err
		}
		parts = append(parts, fmt.Sprintf("%s = ?", column))
		args = append(args, value)
	}
	return scope.QueryScope{Condition: strings.Join(parts, " OR "), Args: args}, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
