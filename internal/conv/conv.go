package conv

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// dateLayouts are tried in order for time.Time targets.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ConversionError reports a request value that does not fit the target type.
type ConversionError struct {
	Value string
	Type  reflect.Type
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot convert '%s' to %s: %v", e.Value, e.Type, e.Err)
	}
	return fmt.Sprintf("cannot convert '%s' to %s", e.Value, e.Type)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Convert turns a string taken from a URL into a value of type t.
// Pointer types are converted to their element type and returned as pointers.
func Convert(raw string, t reflect.Type) (interface{}, error) {
	if t == nil {
		return nil, fmt.Errorf("conversion target type is required")
	}

	if t.Kind() == reflect.Ptr {
		inner, err := Convert(raw, t.Elem())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(reflect.ValueOf(inner).Convert(t.Elem()))
		return ptr.Interface(), nil
	}

	value, err := convertValue(strings.TrimSpace(raw), t)
	if err != nil {
		return nil, &ConversionError{Value: raw, Type: t, Err: err}
	}
	return value, nil
}

func convertValue(raw string, t reflect.Type) (interface{}, error) {
	switch t {
	case timeType:
		return parseTime(raw)
	case uuidType:
		return uuid.Parse(raw)
	case decimalType:
		return decimal.NewFromString(raw)
	}

	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(raw).Convert(t).Interface(), nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(b).Convert(t).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(f).Convert(t).Interface(), nil
	}

	return nil, fmt.Errorf("unsupported type %s", t)
}

func parseTime(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// IsString reports whether values of t are matched as text.
func IsString(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.String
}

// IsTime reports whether t is time.Time or *time.Time.
func IsTime(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t == timeType
}

// Supported reports whether Convert can produce values of type t.
func Supported(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case timeType, uuidType, decimalType:
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
