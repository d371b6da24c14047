package query

import (
	"fmt"
	"strings"
)

// Predicate is a boolean test resolved against an entity's schema when a query is composed.
type Predicate interface {
	build(s *scope) (string, []interface{}, error)
}

type comparison struct {
	field string
	op    string
	value interface{}
}

func (p comparison) build(s *scope) (string, []interface{}, error) {
	col, err := s.column(p.field)
	if err != nil {
		return "", nil, err
	}
	return col + " " + p.op + " ?", []interface{}{p.value}, nil
}

func Eq(field string, value interface{}) Predicate  { return comparison{field, "=", value} }
func Ne(field string, value interface{}) Predicate  { return comparison{field, "<>", value} }
func Gt(field string, value interface{}) Predicate  { return comparison{field, ">", value} }
func Gte(field string, value interface{}) Predicate { return comparison{field, ">=", value} }
func Lt(field string, value interface{}) Predicate  { return comparison{field, "<", value} }
func Lte(field string, value interface{}) Predicate { return comparison{field, "<=", value} }

type membership struct {
	field  string
	values interface{}
}

func (p membership) build(s *scope) (string, []interface{}, error) {
	col, err := s.column(p.field)
	if err != nil {
		return "", nil, err
	}
	return col + " IN ?", []interface{}{p.values}, nil
}

// In matches when field is one of values. An empty slice matches nothing.
func In(field string, values interface{}) Predicate { return membership{field, values} }

type nullity struct {
	field string
	not   bool
}

func (p nullity) build(s *scope) (string, []interface{}, error) {
	col, err := s.column(p.field)
	if err != nil {
		return "", nil, err
	}
	if p.not {
		return col + " IS NOT NULL", nil, nil
	}
	return col + " IS NULL", nil, nil
}

func IsNull(field string) Predicate  { return nullity{field: field} }
func NotNull(field string) Predicate { return nullity{field: field, not: true} }

type junction struct {
	op    string
	preds []Predicate
}

func (p junction) build(s *scope) (string, []interface{}, error) {
	var (
		parts []string
		args  []interface{}
	)
	for _, pred := range p.preds {
		sql, a, err := pred.build(s)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			// a pass-all member makes OR pass-all and is neutral in AND
			if p.op == "OR" {
				return "", nil, nil
			}
			continue
		}
		parts = append(parts, "("+sql+")")
		args = append(args, a...)
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return strings.Join(parts, " "+p.op+" "), args, nil
}

func And(preds ...Predicate) Predicate { return junction{op: "AND", preds: preds} }

// Or with no members matches nothing.
func Or(preds ...Predicate) Predicate {
	if len(preds) == 0 {
		return none{}
	}
	return junction{op: "OR", preds: preds}
}

type correlation struct {
	field      string
	outerField string
}

func (p correlation) build(s *scope) (string, []interface{}, error) {
	if s.outer == nil {
		return "", nil, fmt.Errorf("%w: %s used outside of Exists", ErrUnknownField, p.outerField)
	}
	inner, err := s.column(p.field)
	if err != nil {
		return "", nil, err
	}
	outer, err := s.outer.column(p.outerField)
	if err != nil {
		return "", nil, err
	}
	return inner + " = " + outer, nil, nil
}

// EqOuter ties a field of an Exists subquery to a field of the enclosing entity.
func EqOuter(field, outerField string) Predicate { return correlation{field, outerField} }

type existence struct {
	entity Entity
	preds  []Predicate
}

func (p existence) build(s *scope) (string, []interface{}, error) {
	sub, err := s.child(p.entity)
	if err != nil {
		return "", nil, err
	}
	var (
		parts []string
		args  []interface{}
	)
	for _, pred := range p.preds {
		sql, a, err := pred.build(sub)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			continue
		}
		parts = append(parts, "("+sql+")")
		args = append(args, a...)
	}
	stmt := "EXISTS (SELECT 1 FROM " + sub.from()
	if len(parts) > 0 {
		stmt += " WHERE " + strings.Join(parts, " AND ")
	}
	return stmt + ")", args, nil
}

// Exists matches when at least one row of entity satisfies preds.
func Exists(entity Entity, preds ...Predicate) Predicate { return existence{entity, preds} }

type passAll struct{}

func (passAll) build(*scope) (string, []interface{}, error) { return "", nil, nil }

type none struct{}

func (none) build(*scope) (string, []interface{}, error) { return "1 = 0", nil, nil }

// When returns p if cond holds and a pass-all predicate otherwise, for optional filters.
func When(cond bool, p Predicate) Predicate {
	if cond {
		return p
	}
	return passAll{}
}

// Optional builds a predicate from *v when v is set and passes everything otherwise.
func Optional[V any](v *V, build func(V) Predicate) Predicate {
	if v == nil {
		return passAll{}
	}
	return build(*v)
}
