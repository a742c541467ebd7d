// Package filterdsl implements the vendor-neutral predicate language used
// to filter chunk payloads. A Predicate is an algebraic value built from
// Eq/In/Range/And/Or/Not/Exists/PrefixMatch; translation to a specific
// vector-store's native filter language is a pure function from Predicate
// to that backend's filter type, implemented once per backend.
package filterdsl

import (
	"fmt"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
)

// Op is the closed set of predicate operators.
type Op string

const (
	OpEq          Op = "eq"
	OpIn          Op = "in"
	OpRange       Op = "range"
	OpAnd         Op = "and"
	OpOr          Op = "or"
	OpNot         Op = "not"
	OpExists      Op = "exists"
	OpPrefixMatch Op = "prefix_match"
)

// Predicate is the algebraic type representing one node of a filter
// expression. Exactly one of the payload fields is meaningful, selected by
// Op; this mirrors a tagged union without requiring a type switch on
// interfaces at every translation site.
type Predicate struct {
	Op Op

	// Field-valued leaves: Eq, In, Range, Exists, PrefixMatch
	Field string

	// Eq
	Value any

	// In
	Values []any

	// Range
	Min, Max   *float64
	MinInclude bool
	MaxInclude bool

	// PrefixMatch
	Prefix string

	// And, Or: combined sub-predicates
	Children []Predicate

	// Not: single negated sub-predicate
	Child *Predicate
}

// Eq builds a field == value predicate.
func Eq(field string, value any) Predicate {
	return Predicate{Op: OpEq, Field: field, Value: value}
}

// In builds a field in [values] predicate.
func In(field string, values ...any) Predicate {
	return Predicate{Op: OpIn, Field: field, Values: values}
}

// Range builds a numeric-range predicate. Pass nil for an unbounded side.
func Range(field string, min, max *float64, minInclusive, maxInclusive bool) Predicate {
	return Predicate{Op: OpRange, Field: field, Min: min, Max: max, MinInclude: minInclusive, MaxInclude: maxInclusive}
}

// And combines predicates with logical AND. An empty And matches everything.
func And(children ...Predicate) Predicate {
	return Predicate{Op: OpAnd, Children: children}
}

// Or combines predicates with logical OR. An empty Or matches nothing.
func Or(children ...Predicate) Predicate {
	return Predicate{Op: OpOr, Children: children}
}

// Not negates a single predicate.
func Not(child Predicate) Predicate {
	return Predicate{Op: OpNot, Child: &child}
}

// Exists builds a field-presence predicate.
func Exists(field string) Predicate {
	return Predicate{Op: OpExists, Field: field}
}

// PrefixMatch builds a path-prefix-matching predicate, used for file_path
// scoping (e.g. "src/" matches every file under src/).
func PrefixMatch(field, prefix string) Predicate {
	return Predicate{Op: OpPrefixMatch, Field: field, Prefix: prefix}
}

// KnownFields is the closed set of payload fields a Predicate may reference.
// Validate (and so each translator) rejects any Predicate mentioning a field outside this set with
// Validation, per the spec's "Unknown fields fail with Validation."
var KnownFields = map[string]struct{}{
	"file_path":          {},
	"language":            {},
	"line_start":          {},
	"line_end":            {},
	"chunk_kind":          {},
	"content_hash":        {},
	"embedding_complete":  {},
	"indexed_at":          {},
	"provider_name":       {},
	"semantic_category":   {},
	"importance":          {},
}

// Validate walks p and returns a Validation error for the first field
// reference outside KnownFields. Children of And/Or/Not are checked
// recursively.
func Validate(p Predicate) error {
	switch p.Op {
	case OpAnd, OpOr:
		for _, c := range p.Children {
			if err := Validate(c); err != nil {
				return err
			}
		}
		return nil
	case OpNot:
		if p.Child == nil {
			return coreerrors.New(coreerrors.ErrCodeInvalidQuery, "not predicate missing child", nil)
		}
		return Validate(*p.Child)
	case OpEq, OpIn, OpRange, OpExists, OpPrefixMatch:
		if _, ok := KnownFields[p.Field]; !ok {
			return coreerrors.New(coreerrors.ErrCodeInvalidQuery,
				fmt.Sprintf("filter references unknown field %q", p.Field), nil)
		}
		return nil
	default:
		return coreerrors.New(coreerrors.ErrCodeInvalidQuery, fmt.Sprintf("unknown predicate operator %q", p.Op), nil)
	}
}
