package scope

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultScopeName is the scope every registry answers to, even when no scopes were configured.
const DefaultScopeName = "all"

// ErrScopeNotFound is returned by Registry.Get for names that were never registered.
var ErrScopeNotFound = errors.New("scope not found")

// QueryScope represents a SQL condition that can be added to a query.
// It carries a raw SQL predicate and its arguments for safe parameter binding.
type QueryScope struct {
	// Condition is the SQL WHERE clause condition (e.g., "tenant_id = ?")
	Condition string
	// Args contains the parameter values for placeholders in Condition
	Args []interface{}
}

// Specification is a conjunction of QueryScope conditions.
// A nil or empty Specification matches every row.
type Specification []QueryScope

// And returns a new Specification that holds the conditions of both operands.
// Neither operand is modified.
func And(spec, other Specification) Specification {
	if len(spec) == 0 && len(other) == 0 {
		return nil
	}
	combined := make(Specification, 0, len(spec)+len(other))
	combined = append(combined, spec...)
	combined = append(combined, other...)
	return combined
}

// IsEmpty reports whether the specification has no conditions.
func (s Specification) IsEmpty() bool {
	return len(s) == 0
}

// SQL joins the conditions with AND, wrapping each one in parentheses.
func (s Specification) SQL() (string, []interface{}) {
	if len(s) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(s))
	var args []interface{}
	for _, qs := range s {
		if strings.TrimSpace(qs.Condition) == "" {
			continue
		}
		parts = append(parts, "("+qs.Condition+")")
		args = append(args, qs.Args...)
	}
	return strings.Join(parts, " AND "), args
}

// Scope is a named restriction of an entity collection.
type Scope interface {
	Name() string
}

// AllScope is the unrestricted scope.
type AllScope struct {
	ScopeName string
}

func (s AllScope) Name() string { return s.ScopeName }

// SpecificationScope restricts the collection at the database level.
type SpecificationScope struct {
	ScopeName     string
	Specification Specification
}

func (s SpecificationScope) Name() string { return s.ScopeName }

// Predicate decides in memory whether an entity belongs to a scope.
// The argument is a pointer to the entity struct.
type Predicate func(entity interface{}) bool

// PredicateScope restricts the collection after it has been loaded.
// Paging is applied to the filtered list, so the whole filtered
// collection is read from the repository.
type PredicateScope struct {
	ScopeName string
	Predicate Predicate
}

func (s PredicateScope) Name() string { return s.ScopeName }

// Registry holds the scopes of one entity in registration order.
type Registry struct {
	order  []string
	scopes map[string]Scope
}

// NewRegistry creates a registry containing the default scope.
func NewRegistry() *Registry {
	r := &Registry{scopes: make(map[string]Scope)}
	r.order = append(r.order, DefaultScopeName)
	r.scopes[DefaultScopeName] = AllScope{ScopeName: DefaultScopeName}
	return r
}

// Add registers a scope. Registering a scope named like the default
// scope replaces it; any other duplicate name is an error.
func (r *Registry) Add(s Scope) error {
	if s == nil {
		return fmt.Errorf("scope cannot be nil")
	}
	name := strings.TrimSpace(s.Name())
	if name == "" {
		return fmt.Errorf("scope name cannot be empty")
	}
	switch typed := s.(type) {
	case PredicateScope:
		if typed.Predicate == nil {
			return fmt.Errorf("predicate scope '%s' requires a predicate", name)
		}
	case *PredicateScope:
		if typed == nil || typed.Predicate == nil {
			return fmt.Errorf("predicate scope '%s' requires a predicate", name)
		}
	}
	if _, exists := r.scopes[name]; exists {
		if name != DefaultScopeName {
			return fmt.Errorf("scope '%s' is already registered", name)
		}
		r.scopes[name] = s
		return nil
	}
	r.order = append(r.order, name)
	r.scopes[name] = s
	return nil
}

// Get returns the scope registered under name.
func (r *Registry) Get(name string) (Scope, error) {
	if s, ok := r.scopes[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, name)
}

// Default returns the default scope.
func (r *Registry) Default() Scope {
	return r.scopes[DefaultScopeName]
}

// Names returns the registered scope names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// AsPredicate returns the predicate of a predicate scope.
func AsPredicate(s Scope) (Predicate, bool) {
	switch typed := s.(type) {
	case PredicateScope:
		return typed.Predicate, typed.Predicate != nil
	case *PredicateScope:
		if typed == nil || typed.Predicate == nil {
			return nil, false
		}
		return typed.Predicate, true
	}
	return nil, false
}

// AsSpecification returns the specification of a specification scope.
func AsSpecification(s Scope) (Specification, bool) {
	switch typed := s.(type) {
	case SpecificationScope:
		return typed.Specification, true
	case *SpecificationScope:
		if typed == nil {
			return nil, false
		}
		return typed.Specification, true
	}
	return nil, false
}
