package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/nlstn/go-adminrest/internal/metadata"
)

// Constraint codes. They double as message keys.
const (
	CodeNotNull = "NotNull"
	CodeSize    = "Size"
	CodeInvalid = "Invalid"
)

// Default messages use the argument layout {0}=object, {1}=field, {2}=rejected value, {3..}=constraint arguments.
const (
	DefaultNotNullMessage = "may not be null"
	DefaultSizeMessage    = "size must be between {3} and {4}"
)

// FieldError describes one rejected property. Field is empty for errors about the whole entity.
type FieldError struct {
	ObjectName     string
	Field          string
	RejectedValue  interface{}
	Code           string
	Arguments      []interface{}
	DefaultMessage string
}

// MessageArguments returns the arguments a message pattern is rendered with.
func (fe FieldError) MessageArguments() []interface{} {
	args := make([]interface{}, 0, 3+len(fe.Arguments))
	args = append(args, fe.ObjectName, fe.Field, fe.RejectedValue)
	return append(args, fe.Arguments...)
}

// ConstraintViolationError collects every violation found on an entity.
type ConstraintViolationError struct {
	Errors []FieldError
}

func (e *ConstraintViolationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Field == "" {
			parts = append(parts, fe.Code)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Code))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Reject records a violation.
func (e *ConstraintViolationError) Reject(fe FieldError) {
	e.Errors = append(e.Errors, fe)
}

// HasErrors reports whether any violation was recorded.
func (e *ConstraintViolationError) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}

// Validator is implemented by entities with their own rules.
// Returning a *ConstraintViolationError reports field errors; any other error rejects the entity as a whole.
type Validator interface {
	Validate(ctx context.Context) error
}

// Validate checks required and maximum length facets, then the entity's own Validate method.
// It returns nil or a *ConstraintViolationError.
func Validate(ctx context.Context, meta *metadata.EntityMetadata, entity interface{}) error {
	objectName := metadata.DefaultRepositoryName(meta.EntityName)
	violations := &ConstraintViolationError{}

	for i := range meta.Properties {
		prop := &meta.Properties[i]
		if prop.IsTransient {
			continue
		}
		field, ok := meta.FieldValue(entity, prop)
		if !ok {
			continue
		}

		if prop.IsRequired && !prop.IsKey && isMissing(field) {
			violations.Reject(FieldError{
				ObjectName:     objectName,
				Field:          prop.JsonName,
				RejectedValue:  nil,
				Code:           CodeNotNull,
				DefaultMessage: DefaultNotNullMessage,
			})
			continue
		}

		if prop.MaxLength > 0 {
			if text, ok := stringValue(field); ok && utf8.RuneCountInString(text) > prop.MaxLength {
				violations.Reject(FieldError{
					ObjectName:     objectName,
					Field:          prop.JsonName,
					RejectedValue:  text,
					Code:           CodeSize,
					Arguments:      []interface{}{0, prop.MaxLength},
					DefaultMessage: DefaultSizeMessage,
				})
			}
		}
	}

	if validator, ok := entity.(Validator); ok && meta.Hooks.HasValidate {
		if err := validator.Validate(ctx); err != nil {
			var custom *ConstraintViolationError
			if errors.As(err, &custom) {
				for _, fe := range custom.Errors {
					if fe.ObjectName == "" {
						fe.ObjectName = objectName
					}
					violations.Reject(fe)
				}
			} else {
				violations.Reject(FieldError{
					ObjectName:     objectName,
					Code:           CodeInvalid,
					DefaultMessage: err.Error(),
				})
			}
		}
	}

	if violations.HasErrors() {
		return violations
	}
	return nil
}

// isMissing treats nil references, empty strings and zero structs (time.Time) as absent.
// Numbers and booleans are never missing.
func isMissing(field reflect.Value) bool {
	switch field.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return field.IsNil()
	case reflect.String:
		return strings.TrimSpace(field.String()) == ""
	case reflect.Struct, reflect.Array:
		return field.IsZero()
	}
	return false
}

func stringValue(field reflect.Value) (string, bool) {
	for field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return "", false
		}
		field = field.Elem()
	}
	if field.Kind() != reflect.String {
		return "", false
	}
	return field.String(), true
}
