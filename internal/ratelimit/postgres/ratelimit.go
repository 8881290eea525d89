package postgres

import (
	"context"
	"time"

	ratelimitDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/ratelimit"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Increment(ctx context.Context, key string, windowStart, expiresAt time.Time) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &ratelimitDatamodel.Counter{
			Key:         key,
			WindowStart: windowStart,
			Count:       1,
			ExpiresAt:   expiresAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}, {Name: "window_start"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count": gorm.Expr("rate_limit_counters.count + 1"),
			}),
		}).Create(row).Error; err != nil {
			return err
		}

		var current ratelimitDatamodel.Counter
		if err := tx.Where(&ratelimitDatamodel.Counter{Key: key, WindowStart: windowStart}).
			First(&current).Error; err != nil {
			return err
		}
		count = current.Count
		return nil
	})
	return count, err
}

func (r *Repository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&ratelimitDatamodel.Counter{})
	return res.RowsAffected, res.Error
}
