package query

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nlstn/go-adminrest/internal/conv"
	"github.com/nlstn/go-adminrest/internal/metadata"
)

type Shipment struct {
	ID        int       `json:"id"`
	Carrier   string    `json:"carrier"`
	Weight    int       `json:"weight"`
	ShippedAt time.Time `json:"shippedAt"`
	Express   bool      `json:"express" admin:"-"`
}

func TestToSpecificationConditions(t *testing.T) {
	meta, err := metadata.AnalyzeEntity(Shipment{})
	if err != nil {
		t.Fatalf("AnalyzeEntity failed: %v", err)
	}

	params := url.Values{
		"carrier":   {"Ups"},
		"weight":    {"3", "5"},
		"shippedAt": {"2024-03-01"},
		"express":   {"true"},
		"page":      {"2"},
		"sort":      {"weight"},
		"unknown":   {"x"},
		"id":        {""},
	}

	spec, err := SpecificationCreator{}.ToSpecification(meta, params)
	if err != nil {
		t.Fatalf("ToSpecification failed: %v", err)
	}
	if len(spec) != 3 {
		t.Fatalf("spec = %+v, want 3 conditions", spec)
	}

	// carrier, shippedAt, weight in name order
	if spec[0].Condition != `LOWER("carrier") LIKE ? ESCAPE '\'` || spec[0].Args[0] != "%ups%" {
		t.Errorf("carrier condition = %+v", spec[0])
	}
	if spec[1].Condition != `("shipped_at" >= ? AND "shipped_at" < ?)` || len(spec[1].Args) != 2 {
		t.Errorf("shippedAt condition = %+v", spec[1])
	}
	if day := spec[1].Args[1].(time.Time); !day.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day range end = %v", day)
	}
	if spec[2].Condition != `"weight" IN (?, ?)` || spec[2].Args[0] != 3 || spec[2].Args[1] != 5 {
		t.Errorf("weight condition = %+v", spec[2])
	}
}

func TestToSpecificationInvalidValue(t *testing.T) {
	meta, err := metadata.AnalyzeEntity(Shipment{})
	if err != nil {
		t.Fatalf("AnalyzeEntity failed: %v", err)
	}

	_, err = SpecificationCreator{}.ToSpecification(meta, url.Values{"weight": {"heavy"}})
	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("error = %v, want *FilterError", err)
	}
	if filterErr.Parameter != "weight" {
		t.Errorf("Parameter = %q, want weight", filterErr.Parameter)
	}
	var convErr *conv.ConversionError
	if !errors.As(err, &convErr) {
		t.Errorf("error should wrap a conversion error: %v", err)
	}

	creator := SpecificationCreator{MaxInClauseSize: 2}
	if _, err := creator.ToSpecification(meta, url.Values{"weight": {"1", "2", "3"}}); err == nil {
		t.Fatal("expected too many values error")
	}
}

func TestToSpecificationAgainstDatabase(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE shipments (id INTEGER PRIMARY KEY, carrier TEXT, weight INTEGER);
		INSERT INTO shipments (id, carrier, weight) VALUES
		(1, 'UPS Ground', 3),
		(2, 'DHL', 5),
		(3, 'ups_express', 7),
		(4, 'FedEx 100%', 3);
	`)
	if err != nil {
		t.Fatalf("Failed to seed database: %v", err)
	}

	meta, err := metadata.AnalyzeEntity(Shipment{})
	if err != nil {
		t.Fatalf("AnalyzeEntity failed: %v", err)
	}

	tests := []struct {
		name   string
		params url.Values
		want   int64
	}{
		{"substring ignores case", url.Values{"carrier": {"ups"}}, 2},
		{"underscore is literal", url.Values{"carrier": {"s_e"}}, 1},
		{"percent is literal", url.Values{"carrier": {"100%"}}, 1},
		{"several values", url.Values{"weight": {"3", "7"}}, 3},
		{"conditions are combined", url.Values{"carrier": {"ups"}, "weight": {"3"}}, 1},
		{"no filter", url.Values{}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := SpecificationCreator{}.ToSpecification(meta, tt.params)
			if err != nil {
				t.Fatalf("ToSpecification failed: %v", err)
			}
			count, err := NewBuilder(db, "sqlite").
				WithTable(meta.TableName).
				WhereSpecification(spec).
				CountContext(context.Background())
			if err != nil {
				t.Fatalf("CountContext failed: %v", err)
			}
			if count != tt.want {
				t.Errorf("count = %d, want %d (spec %+v)", count, tt.want, spec)
			}
		})
	}
}

type Seat struct {
	ID    int    `json:"id"`
	Group string `json:"group"`
	Order int    `json:"order"`
}

func TestToSpecificationReservedWordColumns(t *testing.T) {
	meta, err := metadata.AnalyzeEntity(Seat{})
	if err != nil {
		t.Fatalf("AnalyzeEntity failed: %v", err)
	}

	spec, err := SpecificationCreator{Dialect: "mysql"}.ToSpecification(meta, url.Values{"order": {"2"}})
	if err != nil {
		t.Fatalf("ToSpecification failed: %v", err)
	}
	if len(spec) != 1 || spec[0].Condition != "`order` = ?" {
		t.Fatalf("mysql spec = %+v", spec)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE seats (id INTEGER PRIMARY KEY, "group" TEXT, "order" INTEGER);
		INSERT INTO seats (id, "group", "order") VALUES (1, 'front', 1), (2, 'front', 2), (3, 'back', 2);
	`)
	if err != nil {
		t.Fatalf("Failed to seed database: %v", err)
	}

	tests := []struct {
		name   string
		params url.Values
		want   int64
	}{
		{"group", url.Values{"group": {"front"}}, 2},
		{"order", url.Values{"order": {"2"}}, 2},
		{"both", url.Values{"group": {"back"}, "order": {"2", "3"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := SpecificationCreator{Dialect: "sqlite"}.ToSpecification(meta, tt.params)
			if err != nil {
				t.Fatalf("ToSpecification failed: %v", err)
			}
			count, err := NewBuilder(db, "sqlite").
				WithTable(meta.TableName).
				WhereSpecification(spec).
				CountContext(context.Background())
			if err != nil {
				t.Fatalf("CountContext failed: %v", err)
			}
			if count != tt.want {
				t.Errorf("count = %d, want %d", count, tt.want)
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	got := escapeLike(`50%_off\`)
	want := `50\%\_off\\`
	if got != want {
		t.Fatalf("escapeLike = %q, want %q", got, want)
	}
	if !strings.Contains(placeholders(3), "?, ?, ?") {
		t.Fatalf("placeholders(3) = %q", placeholders(3))
	}
}
