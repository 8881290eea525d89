package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const numberSequence = "expense"

// ExpenseRepository implements expense.Repository and the duplicate lookups
// of the policy evaluator. It works on any *gorm.DB, including a transaction.
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, e *expense.Expense) error {
	row := expense.ToDataModel(e)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return internal.NewDuplicateNumberError(e.Number)
		}
		return err
	}
	e.ID = row.ID
	return nil
}

// NextNumber increments the sequence row and formats it as EXP-nnnn.
func (r *ExpenseRepository) NextNumber(ctx context.Context) (string, error) {
	var value int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq := expenseDatamodel.NumberSequence{Name: numberSequence, Value: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"value": gorm.Expr("number_sequences.value + 1")}),
		}).Create(&seq).Error; err != nil {
			return err
		}
		var current expenseDatamodel.NumberSequence
		if err := tx.Where("name = ?", numberSequence).First(&current).Error; err != nil {
			return err
		}
		value = current.Value
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EXP-%04d", value), nil
}

func (r *ExpenseRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).
		Where("number = ?", number).
		Count(&count).Error
	return count > 0, err
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*expense.Expense, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// GetByIDForUpdate takes a row lock on postgres. Other dialects rely on the
// version check in Update.
func (r *ExpenseRepository) GetByIDForUpdate(ctx context.Context, id int64) (*expense.Expense, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.get(q, id)
}

func (r *ExpenseRepository) get(q *gorm.DB, id int64) (*expense.Expense, error) {
	var row expenseDatamodel.Expense
	if err := q.Where("id = ? AND is_deleted = ?", id, false).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, err
	}
	return expense.FromDataModel(&row), nil
}

var mutableColumns = []string{
	"amount", "original_amount", "currency", "category", "vendor", "description", "payment_method",
	"expense_date", "details", "location", "receipt_filename", "receipt_hash", "normalized_key",
	"status", "current_approval_level", "required_approval_level", "policy_flags", "risk_score",
	"modification_reason", "version", "submitted_at", "approved_at", "updated_at",
}

// Update writes every mutable column guarded by the version the caller read.
// Losing the race returns ErrConcurrentModification.
func (r *ExpenseRepository) Update(ctx context.Context, e *expense.Expense) error {
	row := expense.ToDataModel(e)
	row.Version = e.Version + 1
	row.UpdatedAt = time.Now().UTC()

	res := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).
		Where("id = ? AND version = ?", e.ID, e.Version).
		Select(mutableColumns).
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrConcurrentModification
	}
	e.Version = row.Version
	e.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *ExpenseRepository) SoftDelete(ctx context.Context, id int64, version int) error {
	res := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"is_active":  false,
			"version":    version + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrConcurrentModification
	}
	return nil
}

func (r *ExpenseRepository) List(ctx context.Context, filter expense.ListFilter) ([]*expense.Expense, error) {
	q := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).Where("is_deleted = ?", false)
	if filter.SubmitterID != nil {
		q = q.Where("submitter_id = ?", *filter.SubmitterID)
	}
	if filter.SiteID != nil {
		q = q.Where("site_id = ?", *filter.SiteID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []*expenseDatamodel.Expense
	if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(rows), nil
}

func (r *ExpenseRepository) GetByIDs(ctx context.Context, ids []int64) ([]*expense.Expense, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*expenseDatamodel.Expense
	if err := r.db.WithContext(ctx).Where("id IN ? AND is_deleted = ?", ids, false).
		Order("submitted_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(rows), nil
}

// ReceiptHashExists looks for an active expense other than excludeID with the
// same receipt content.
func (r *ExpenseRepository) ReceiptHashExists(ctx context.Context, hash string, excludeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).
		Where("receipt_hash = ? AND id <> ? AND is_active = ? AND is_deleted = ?", hash, excludeID, true, false).
		Where("status <> ?", string(expense.StatusDraft)).
		Count(&count).Error
	return count > 0, err
}

// NormalizedKeyExists looks for the submitter's other expenses with the same
// key dated in [from, to).
func (r *ExpenseRepository) NormalizedKeyExists(ctx context.Context, submitterID int64, key string, from, to time.Time, excludeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).
		Where("submitter_id = ? AND normalized_key = ? AND id <> ? AND is_deleted = ?", submitterID, key, excludeID, false).
		Where("expense_date >= ? AND expense_date < ?", from, to).
		Count(&count).Error
	return count > 0, err
}
