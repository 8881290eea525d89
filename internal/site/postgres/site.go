package postgres

import (
	"context"
	"errors"
	"time"

	siteDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/site"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*site.Site, error) {
	var row siteDatamodel.Site
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, site.ErrNotFound
		}
		return nil, err
	}
	return site.FromDataModel(&row), nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*site.Site, error) {
	var row siteDatamodel.Site
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, site.ErrNotFound
		}
		return nil, err
	}
	return site.FromDataModel(&row), nil
}

func (r *Repository) List(ctx context.Context, activeOnly bool) ([]*site.Site, error) {
	q := r.db.WithContext(ctx).Model(&siteDatamodel.Site{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var rows []*siteDatamodel.Site
	if err := q.Order("code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*site.Site, len(rows))
	for i, row := range rows {
		out[i] = site.FromDataModel(row)
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, s *site.Site) error {
	row := site.ToDataModel(s)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	s.ID = row.ID
	s.CreatedAt = row.CreatedAt
	s.UpdatedAt = row.UpdatedAt
	return nil
}

// Update writes configuration columns only. Running totals belong to the
// budget ledger and are never overwritten from a config edit.
func (r *Repository) Update(ctx context.Context, s *site.Site) error {
	return r.db.WithContext(ctx).Model(&siteDatamodel.Site{}).
		Where("id = ?", s.ID).
		Select("name", "city", "latitude", "longitude", "monthly_budget", "yearly_budget",
			"category_budgets", "alert_threshold", "auto_approval_limit", "l1_threshold",
			"l2_threshold", "l3_threshold", "policy", "is_active", "updated_at").
		Updates(site.ToDataModel(s)).Error
}

func (r *Repository) ResetStats(ctx context.Context, period site.Period, now time.Time) (int64, error) {
	month := site.StatsMonth(now)
	updates := map[string]interface{}{
		"monthly_spend":  decimal.Zero,
		"category_spend": gorm.Expr("NULL"),
		"expense_count":  0,
		"stats_month":    month,
		"updated_at":     now,
	}

	q := r.db.WithContext(ctx).Model(&siteDatamodel.Site{})
	if period == site.PeriodYearly {
		updates["yearly_spend"] = decimal.Zero
		updates["stats_year"] = now.Year()
		q = q.Where("stats_year IS NULL OR stats_year <> ?", now.Year())
	} else {
		q = q.Where("stats_month IS NULL OR stats_month <> ?", month)
	}

	res := q.Updates(updates)
	return res.RowsAffected, res.Error
}
