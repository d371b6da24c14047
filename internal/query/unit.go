package query

import (
	"cardofun_backend/internal/util"
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Add inserts entity. Zero affected rows is reported as util.ErrNothingCommitted.
func Add[T Entity](ctx context.Context, db *gorm.DB, entity *T) error {
	res := db.WithContext(ctx).Create(entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrNothingCommitted
	}
	return nil
}

// Remove deletes entity by its primary key.
func Remove[T Entity](ctx context.Context, db *gorm.DB, entity *T) error {
	res := db.WithContext(ctx).Delete(entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrNothingCommitted
	}
	return nil
}

// Update sets values on every T matching preds and returns the affected row count.
// Keys of values are field names resolved like predicate fields.
func Update[T Entity](ctx context.Context, db *gorm.DB, values map[string]interface{}, preds ...Predicate) (int64, error) {
	if len(preds) == 0 {
		return 0, errors.New("update without predicates")
	}
	var entity T
	sc, err := newScope(db.NamingStrategy, entity)
	if err != nil {
		return 0, err
	}

	columns := make(map[string]interface{}, len(values))
	for field, v := range values {
		f := sc.schema.LookUpField(field)
		if f == nil || f.DBName == "" {
			return 0, fmt.Errorf("%w: %s.%s", ErrUnknownField, sc.table, field)
		}
		columns[f.DBName] = v
	}

	tx := db.WithContext(ctx).Model(new(T))
	for _, p := range preds {
		sql, args, err := p.build(sc)
		if err != nil {
			return 0, err
		}
		if sql != "" {
			tx = tx.Where(sql, args...)
		}
	}
	res := tx.Updates(columns)
	return res.RowsAffected, res.Error
}

// Transaction runs fn in one database transaction.
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}
