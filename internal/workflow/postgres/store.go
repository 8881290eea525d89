package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
	paymentDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/payment"
	siteDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/site"
	"github.com/frahmantamala/expense-approval/internal/expense"
	expensePostgres "github.com/frahmantamala/expense-approval/internal/expense/postgres"
	"github.com/frahmantamala/expense-approval/internal/site"
	sitePostgres "github.com/frahmantamala/expense-approval/internal/site/postgres"
	"github.com/frahmantamala/expense-approval/internal/user"
	userPostgres "github.com/frahmantamala/expense-approval/internal/user/postgres"
	"github.com/frahmantamala/expense-approval/internal/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm implementation of workflow.Store. Pending approvers and
// history live only in their own tables.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, newTx(db))
	})
}

func (s *Store) GetExpense(ctx context.Context, id int64) (*expense.Expense, error) {
	return expensePostgres.NewExpenseRepository(s.db).GetByID(ctx, id)
}

func (s *Store) History(ctx context.Context, expenseID int64) ([]workflow.HistoryEntry, error) {
	var rows []*approvalDatamodel.History
	if err := s.db.WithContext(ctx).
		Where("expense_id = ?", expenseID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]workflow.HistoryEntry, len(rows))
	for i, row := range rows {
		out[i] = workflow.HistoryFromDataModel(row)
	}
	return out, nil
}

func (s *Store) PendingApprovers(ctx context.Context, expenseID int64) ([]workflow.PendingApprover, error) {
	return listPending(s.db.WithContext(ctx), expenseID, 0)
}

func (s *Store) Inbox(ctx context.Context, approverID int64, limit, offset int) ([]*expense.Expense, error) {
	q := s.db.WithContext(ctx).Model(&approvalDatamodel.PendingApprover{}).
		Distinct("expense_id").
		Where("approver_id = ? AND status IN ?", approverID, activeStatuses()).
		Order("expense_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var ids []int64
	if err := q.Pluck("expense_id", &ids).Error; err != nil {
		return nil, err
	}
	return expensePostgres.NewExpenseRepository(s.db).GetByIDs(ctx, ids)
}

// tx implements workflow.Tx on top of a gorm transaction, reusing the
// repositories of the owning packages.
type tx struct {
	db       *gorm.DB
	expenses *expensePostgres.ExpenseRepository
	sites    *sitePostgres.Repository
	users    *userPostgres.Repository
}

func newTx(db *gorm.DB) *tx {
	return &tx{
		db:       db,
		expenses: expensePostgres.NewExpenseRepository(db),
		sites:    sitePostgres.NewRepository(db),
		users:    userPostgres.NewRepository(db),
	}
}

func (t *tx) GetExpenseForUpdate(ctx context.Context, id int64) (*expense.Expense, error) {
	return t.expenses.GetByIDForUpdate(ctx, id)
}

func (t *tx) SaveExpense(ctx context.Context, e *expense.Expense) error {
	return t.expenses.Update(ctx, e)
}

func (t *tx) NumberTaken(ctx context.Context, number string, excludeID int64) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).
		Where("number = ? AND id <> ?", number, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (t *tx) GetSite(ctx context.Context, siteID int64) (*site.Site, error) {
	return t.sites.GetByID(ctx, siteID)
}

func (t *tx) ListPendingApprovers(ctx context.Context, expenseID int64, level int) ([]workflow.PendingApprover, error) {
	return listPending(t.db.WithContext(ctx), expenseID, level)
}

func (t *tx) CreatePendingApprovers(ctx context.Context, expenseID int64, level int, approverIDs []int64, at time.Time) error {
	if len(approverIDs) == 0 {
		return nil
	}
	rows := make([]*approvalDatamodel.PendingApprover, len(approverIDs))
	for i, id := range approverIDs {
		rows[i] = &approvalDatamodel.PendingApprover{
			ExpenseID:  expenseID,
			Level:      level,
			ApproverID: id,
			Status:     string(workflow.PendingStatusPending),
			AssignedAt: at,
		}
	}
	return t.db.WithContext(ctx).Create(&rows).Error
}

func (t *tx) RetirePendingApprovers(ctx context.Context, expenseID int64, level int, actedBy *int64, at time.Time) error {
	scope := func() *gorm.DB {
		q := t.db.WithContext(ctx).Model(&approvalDatamodel.PendingApprover{}).
			Where("expense_id = ? AND status IN ?", expenseID, activeStatuses())
		if level > 0 {
			q = q.Where("level = ?", level)
		}
		return q
	}

	if actedBy != nil {
		if err := scope().Where("approver_id = ?", *actedBy).Updates(map[string]interface{}{
			"status":      string(workflow.PendingStatusCompleted),
			"resolved_at": at,
		}).Error; err != nil {
			return err
		}
	}
	return scope().Updates(map[string]interface{}{
		"status":      string(workflow.PendingStatusCancelled),
		"resolved_at": at,
	}).Error
}

func (t *tx) AppendHistory(ctx context.Context, h *workflow.HistoryEntry) error {
	row := workflow.HistoryToDataModel(h)
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	h.ID = row.ID
	return nil
}

func (t *tx) ActiveApproversForSite(ctx context.Context, siteID int64, level int) ([]int64, error) {
	role, ok := user.ApproverRole(level)
	if !ok {
		return nil, fmt.Errorf("no approver role for level %d", level)
	}
	active := true
	users, err := t.users.List(ctx, user.ListFilter{SiteID: &siteID, Roles: []user.Role{role}, Active: &active})
	if err != nil {
		return nil, err
	}
	return userIDs(users), nil
}

func (t *tx) ActiveL3Approvers(ctx context.Context) ([]int64, error) {
	active := true
	users, err := t.users.List(ctx, user.ListFilter{Roles: []user.Role{user.RoleL3Approver}, Active: &active})
	if err != nil {
		return nil, err
	}
	return userIDs(users), nil
}

func (t *tx) RecordPayment(ctx context.Context, p workflow.Payment) (bool, error) {
	row := &paymentDatamodel.Payment{
		ExpenseID:   p.ExpenseID,
		Reference:   p.Reference,
		Amount:      p.Amount,
		Currency:    p.Currency,
		PaymentDate: p.PaymentDate,
		ProcessedBy: p.ProcessedBy,
	}
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *tx) InsertSpendEntry(ctx context.Context, expenseID, siteID int64, category string, amount decimal.Decimal, at time.Time) (bool, error) {
	entry := &siteDatamodel.SpendEntry{
		ExpenseID: expenseID,
		SiteID:    siteID,
		Category:  category,
		Amount:    amount,
		AppliedAt: at,
	}
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "expense_id"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddSiteSpend increments the running totals in SQL and rewrites the
// category map under the site row lock.
func (t *tx) AddSiteSpend(ctx context.Context, siteID int64, category string, amount decimal.Decimal) error {
	q := t.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row siteDatamodel.Site
	if err := q.Select("id", "category_spend").Where("id = ?", siteID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return site.ErrNotFound
		}
		return err
	}

	if err := t.db.WithContext(ctx).Model(&siteDatamodel.Site{}).
		Where("id = ?", siteID).
		UpdateColumns(map[string]interface{}{
			"monthly_spend": gorm.Expr("monthly_spend + ?", amount),
			"yearly_spend":  gorm.Expr("yearly_spend + ?", amount),
			"expense_count": gorm.Expr("expense_count + 1"),
		}).Error; err != nil {
		return err
	}

	spend := row.CategorySpend
	if spend == nil {
		spend = map[string]decimal.Decimal{}
	}
	spend[category] = spend[category].Add(amount)
	return t.db.WithContext(ctx).Model(&siteDatamodel.Site{ID: siteID}).
		Select("category_spend").
		Updates(&siteDatamodel.Site{CategorySpend: spend}).Error
}

func (t *tx) ReceiptHashExists(ctx context.Context, hash string, excludeID int64) (bool, error) {
	return t.expenses.ReceiptHashExists(ctx, hash, excludeID)
}

func (t *tx) NormalizedKeyExists(ctx context.Context, submitterID int64, key string, from, to time.Time, excludeID int64) (bool, error) {
	return t.expenses.NormalizedKeyExists(ctx, submitterID, key, from, to, excludeID)
}

func listPending(q *gorm.DB, expenseID int64, level int) ([]workflow.PendingApprover, error) {
	q = q.Where("expense_id = ? AND status IN ?", expenseID, activeStatuses())
	if level > 0 {
		q = q.Where("level = ?", level)
	}

	var rows []*approvalDatamodel.PendingApprover
	if err := q.Order("level ASC, approver_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]workflow.PendingApprover, len(rows))
	for i, row := range rows {
		out[i] = workflow.PendingFromDataModel(row)
	}
	return out, nil
}

func activeStatuses() []string {
	out := make([]string, len(workflow.ActivePendingStatuses))
	for i, s := range workflow.ActivePendingStatuses {
		out[i] = string(s)
	}
	return out
}

func userIDs(users []*user.User) []int64 {
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}
