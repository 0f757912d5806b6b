package conv

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type orderStatus string

func TestConvertScalars(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		typ  reflect.Type
		want interface{}
	}{
		{"int", "42", reflect.TypeOf(0), 42},
		{"int64", "-7", reflect.TypeOf(int64(0)), int64(-7)},
		{"uint", " 9 ", reflect.TypeOf(uint(0)), uint(9)},
		{"float", "1.5", reflect.TypeOf(float64(0)), 1.5},
		{"bool", "true", reflect.TypeOf(false), true},
		{"string", "abc", reflect.TypeOf(""), "abc"},
		{"named string", "open", reflect.TypeOf(orderStatus("")), orderStatus("open")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.raw, tt.typ)
			if err != nil {
				t.Fatalf("Convert(%q) error: %v", tt.raw, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Convert(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestConvertLibraryTypes(t *testing.T) {
	id := uuid.New()
	got, err := Convert(id.String(), reflect.TypeOf(uuid.UUID{}))
	if err != nil {
		t.Fatalf("uuid conversion failed: %v", err)
	}
	if got.(uuid.UUID) != id {
		t.Fatalf("uuid = %v, want %v", got, id)
	}

	got, err = Convert("19.99", reflect.TypeOf(decimal.Decimal{}))
	if err != nil {
		t.Fatalf("decimal conversion failed: %v", err)
	}
	if !got.(decimal.Decimal).Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("decimal = %v", got)
	}

	got, err = Convert("2024-03-01", reflect.TypeOf(time.Time{}))
	if err != nil {
		t.Fatalf("date conversion failed: %v", err)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !got.(time.Time).Equal(want) {
		t.Fatalf("date = %v, want %v", got, want)
	}
}

func TestConvertPointer(t *testing.T) {
	got, err := Convert("12", reflect.TypeOf((*int)(nil)))
	if err != nil {
		t.Fatalf("pointer conversion failed: %v", err)
	}
	ptr, ok := got.(*int)
	if !ok || *ptr != 12 {
		t.Fatalf("pointer conversion = %#v", got)
	}
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert("abc", reflect.TypeOf(0))
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if convErr.Value != "abc" {
		t.Fatalf("Value = %q, want %q", convErr.Value, "abc")
	}

	if _, err := Convert("1", reflect.TypeOf([]int{})); err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if _, err := Convert("1", nil); err == nil {
		t.Fatal("expected error for nil type")
	}
}

func TestTypePredicates(t *testing.T) {
	if !IsString(reflect.TypeOf((*string)(nil))) {
		t.Fatal("*string should be a string type")
	}
	if IsString(reflect.TypeOf(0)) {
		t.Fatal("int should not be a string type")
	}
	if !IsTime(reflect.TypeOf(time.Time{})) {
		t.Fatal("time.Time should be a time type")
	}
	if !Supported(reflect.TypeOf(decimal.Decimal{})) {
		t.Fatal("decimal should be supported")
	}
	if Supported(reflect.TypeOf(struct{}{})) {
		t.Fatal("struct should not be supported")
	}
}
