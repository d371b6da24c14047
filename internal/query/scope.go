package query

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm/schema"
)

var (
	ErrUnknownField    = errors.New("unknown field")
	ErrUnknownRelation = errors.New("unknown relation")
	ErrKeyMismatch     = errors.New("key does not match entity key fields")
)

var schemaCache sync.Map

// scope is the table an expression is resolved against, plus its enclosing scopes.
type scope struct {
	table  string
	alias  string
	schema *schema.Schema
	namer  schema.Namer
	outer  *scope
}

func newScope(namer schema.Namer, e Entity) (*scope, error) {
	sch, err := schema.Parse(e, &schemaCache, namer)
	if err != nil {
		return nil, fmt.Errorf("parse entity %T: %w", e, err)
	}
	return &scope{table: e.TableName(), alias: e.TableName(), schema: sch, namer: namer}, nil
}

func (s *scope) child(e Entity) (*scope, error) {
	sub, err := newScope(s.namer, e)
	if err != nil {
		return nil, err
	}
	sub.outer = s
	depth := 1
	for o := s; o != nil; o = o.outer {
		if o.alias == sub.alias {
			sub.alias = fmt.Sprintf("%s_%d", sub.table, depth)
		}
		depth++
	}
	return sub, nil
}

func (s *scope) from() string {
	if s.alias == s.table {
		return s.table
	}
	return s.table + " AS " + s.alias
}

func (s *scope) column(field string) (string, error) {
	f := s.schema.LookUpField(field)
	if f == nil || f.DBName == "" {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownField, s.table, field)
	}
	return s.alias + "." + f.DBName, nil
}

// relation checks a dotted preload path such as "City.Country".
func (s *scope) relation(path string) error {
	sch := s.schema
	for _, part := range strings.Split(path, ".") {
		rel, ok := sch.Relationships.Relations[part]
		if !ok {
			return fmt.Errorf("%w: %s on %s", ErrUnknownRelation, part, sch.Table)
		}
		sch = rel.FieldSchema
	}
	return nil
}
