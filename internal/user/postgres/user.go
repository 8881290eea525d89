package postgres

import (
	"context"
	"errors"

	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
	"github.com/frahmantamala/expense-approval/internal/user"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var row userDatamodel.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&row), nil
}

func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]*user.User, error) {
	var rows []*userDatamodel.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var row userDatamodel.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&row), nil
}

func (r *Repository) List(ctx context.Context, filter user.ListFilter) ([]*user.User, error) {
	q := r.db.WithContext(ctx).Model(&userDatamodel.User{})
	if filter.SiteID != nil {
		q = q.Where("site_id = ?", *filter.SiteID)
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			roles[i] = string(role)
		}
		q = q.Where("role IN ?", roles)
	}
	if filter.Active != nil {
		q = q.Where("is_active = ?", *filter.Active)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []*userDatamodel.User
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func (r *Repository) Create(ctx context.Context, u *user.User) error {
	row := user.ToDataModel(u)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	u.ID = row.ID
	u.CreatedAt = row.CreatedAt
	u.UpdatedAt = row.UpdatedAt
	return nil
}

// Update writes role, site and active flag. Select forces zero values such as
// is_active=false and a nil site to be written.
func (r *Repository) Update(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", u.ID).
		Select("role", "site_id", "is_active", "updated_at").
		Updates(user.ToDataModel(u)).Error
}

func fromRows(rows []*userDatamodel.User) []*user.User {
	out := make([]*user.User, len(rows))
	for i, row := range rows {
		out[i] = user.FromDataModel(row)
	}
	return out
}
