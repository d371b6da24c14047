// Package query composes filtered, shaped and paginated views over gorm entities.
package query

import (
	"cardofun_backend/internal/util"
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Entity is a persisted kind that names its table and declares its key columns.
type Entity interface {
	TableName() string
	KeyFields() []string
}

// Source builds a derived table standing in for an entity's table.
type Source func(db *gorm.DB) *gorm.DB

type condition struct {
	sql  string
	args []interface{}
}

// Query is a lazily evaluated view. Nothing touches the database until a terminal
// method runs, and Where never mutates its receiver.
type Query[T Entity] struct {
	db       *gorm.DB
	source   Source
	scope    *scope
	includes []include
	orders   []string
	where    []condition
}

// From composes a query over T's table.
func From[T Entity](db *gorm.DB, shape Shape, preds ...Predicate) (*Query[T], error) {
	return FromSource[T](db, nil, shape, preds...)
}

// FromSource composes a query over a derived table aliased as T's table.
// source must select every column of T.
func FromSource[T Entity](db *gorm.DB, source Source, shape Shape, preds ...Predicate) (*Query[T], error) {
	var entity T
	sc, err := newScope(db.NamingStrategy, entity)
	if err != nil {
		return nil, err
	}

	q := &Query[T]{db: db, source: source, scope: sc}
	if shape != nil {
		var s Shaping
		shape(&s)
		for _, inc := range s.includes {
			if err := sc.relation(inc.path); err != nil {
				return nil, err
			}
		}
		q.includes = s.includes
		for _, o := range s.orders {
			col, err := sc.column(o.field)
			if err != nil {
				return nil, err
			}
			if o.desc {
				col += " DESC"
			}
			q.orders = append(q.orders, col)
		}
	}
	return q.Where(preds...)
}

// Where returns a copy of q with preds ANDed after the existing ones.
func (q *Query[T]) Where(preds ...Predicate) (*Query[T], error) {
	next := *q
	next.where = append(make([]condition, 0, len(q.where)+len(preds)), q.where...)
	for _, p := range preds {
		sql, args, err := p.build(q.scope)
		if err != nil {
			return nil, err
		}
		if sql == "" {
			continue
		}
		next.where = append(next.where, condition{sql: sql, args: args})
	}
	return &next, nil
}

func (q *Query[T]) filtered(ctx context.Context) *gorm.DB {
	tx := q.db.WithContext(ctx).Model(new(T))
	if q.source != nil {
		tx = tx.Table("(?) AS "+q.scope.table, q.source(q.db.WithContext(ctx)))
	}
	for _, c := range q.where {
		tx = tx.Where(c.sql, c.args...)
	}
	return tx
}

func (q *Query[T]) shaped(ctx context.Context) *gorm.DB {
	tx := q.filtered(ctx)
	for _, inc := range q.includes {
		tx = tx.Preload(inc.path, inc.conds...)
	}
	for _, o := range q.orders {
		tx = tx.Order(o)
	}
	return tx
}

// First returns the first match, or nil when nothing matches.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	var items []T
	if err := q.shaped(ctx).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	if err := q.shaped(ctx).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	var total int64
	err := q.filtered(ctx).Count(&total).Error
	return total, err
}

// Page counts the full filtered view, then fetches one page of it.
func (q *Query[T]) Page(ctx context.Context, p util.PageParams) (*util.PagedResult[T], error) {
	if err := p.Validate(0); err != nil {
		return nil, err
	}
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	if int64(p.Offset()) >= total {
		return util.NewPagedResult([]T{}, total, p), nil
	}

	var items []T
	if err := q.shaped(ctx).Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return util.NewPagedResult(items, total, p), nil
}

// Get looks an entity up by its declared key fields, in order.
func (q *Query[T]) Get(ctx context.Context, key ...interface{}) (*T, error) {
	var entity T
	fields := entity.KeyFields()
	if len(key) != len(fields) {
		return nil, fmt.Errorf("%w: %s wants %d values, got %d", ErrKeyMismatch, entity.TableName(), len(fields), len(key))
	}
	preds := make([]Predicate, len(fields))
	for i, f := range fields {
		preds[i] = Eq(f, key[i])
	}
	kq, err := q.Where(preds...)
	if err != nil {
		return nil, err
	}
	return kq.First(ctx)
}
