package scope

import (
	"errors"
	"reflect"
	"testing"
)

func TestAndKeepsOperandsIntact(t *testing.T) {
	a := Specification{{Condition: "a = ?", Args: []interface{}{1}}}
	b := Specification{{Condition: "b = ?", Args: []interface{}{2}}}

	combined := And(a, b)
	if len(combined) != 2 {
		t.Fatalf("len(And) = %d, want 2", len(combined))
	}
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("operands were modified: a=%v b=%v", a, b)
	}

	if got := And(nil, nil); got != nil {
		t.Fatalf("And(nil, nil) = %v, want nil", got)
	}
	if got := And(nil, b); len(got) != 1 {
		t.Fatalf("And(nil, b) = %v, want one condition", got)
	}
}

func TestSpecificationSQL(t *testing.T) {
	spec := Specification{
		{Condition: "status = ?", Args: []interface{}{"open"}},
		{Condition: " "},
		{Condition: "total > ? OR total < ?", Args: []interface{}{10, 2}},
	}

	sql, args := spec.SQL()
	wantSQL := "(status = ?) AND (total > ? OR total < ?)"
	if sql != wantSQL {
		t.Fatalf("SQL = %q, want %q", sql, wantSQL)
	}
	if !reflect.DeepEqual(args, []interface{}{"open", 10, 2}) {
		t.Fatalf("args = %v", args)
	}

	if sql, args := Specification(nil).SQL(); sql != "" || args != nil {
		t.Fatalf("empty SQL = %q %v", sql, args)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get(DefaultScopeName); err != nil {
		t.Fatalf("default scope missing: %v", err)
	}

	if err := r.Add(SpecificationScope{ScopeName: "open", Specification: Specification{{Condition: "open = ?", Args: []interface{}{true}}}}); err != nil {
		t.Fatalf("Add(open): %v", err)
	}
	if err := r.Add(PredicateScope{ScopeName: "vip", Predicate: func(interface{}) bool { return true }}); err != nil {
		t.Fatalf("Add(vip): %v", err)
	}

	if err := r.Add(SpecificationScope{ScopeName: "open"}); err == nil {
		t.Fatal("expected duplicate scope error")
	}
	if err := r.Add(PredicateScope{ScopeName: "broken"}); err == nil {
		t.Fatal("expected error for predicate scope without predicate")
	}
	if err := r.Add(AllScope{ScopeName: " "}); err == nil {
		t.Fatal("expected error for empty scope name")
	}

	if got, want := r.Names(), []string{"all", "open", "vip"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	_, err := r.Get("missing")
	if !errors.Is(err, ErrScopeNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrScopeNotFound", err)
	}

	s, _ := r.Get("vip")
	if _, ok := AsPredicate(s); !ok {
		t.Fatal("vip should be a predicate scope")
	}
	if _, ok := AsSpecification(s); ok {
		t.Fatal("vip should not be a specification scope")
	}

	s, _ = r.Get("open")
	spec, ok := AsSpecification(s)
	if !ok || len(spec) != 1 {
		t.Fatalf("open specification = %v, %v", spec, ok)
	}
}

func TestRegistryReplacesDefaultScope(t *testing.T) {
	r := NewRegistry()
	replacement := SpecificationScope{ScopeName: DefaultScopeName, Specification: Specification{{Condition: "deleted = ?", Args: []interface{}{false}}}}
	if err := r.Add(replacement); err != nil {
		t.Fatalf("Add(default): %v", err)
	}
	if _, ok := AsSpecification(r.Default()); !ok {
		t.Fatal("default scope was not replaced")
	}
	if got := r.Names(); len(got) != 1 {
		t.Fatalf("Names() = %v, want single entry", got)
	}
}
