package postgres

import (
	"errors"

	"github.com/frahmantamala/expense-approval/internal/category"
	categoryDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/category"
	"gorm.io/gorm"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) category.RepositoryAPI {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) GetAll() ([]*categoryDatamodel.ExpenseCategory, error) {
	var categories []*categoryDatamodel.ExpenseCategory
	err := r.db.Order("sort_order ASC, name ASC").Find(&categories).Error
	return categories, err
}

func (r *CategoryRepository) GetByName(name string) (*categoryDatamodel.ExpenseCategory, error) {
	var cat categoryDatamodel.ExpenseCategory
	err := r.db.Where("name = ?", name).First(&cat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

func (r *CategoryRepository) Create(cat *categoryDatamodel.ExpenseCategory) error {
	return r.db.Create(cat).Error
}

func (r *CategoryRepository) Update(cat *categoryDatamodel.ExpenseCategory) error {
	return r.db.Save(cat).Error
}
