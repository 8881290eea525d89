package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

type PendingApprover struct {
	ID         int64      `gorm:"primaryKey"`
	ExpenseID  int64      `gorm:"column:expense_id;not null;index:idx_pending_expense_level"`
	Level      int        `gorm:"column:level;not null;index:idx_pending_expense_level"`
	ApproverID int64      `gorm:"column:approver_id;not null;index"`
	Status     string     `gorm:"column:status;not null;index"`
	AssignedAt time.Time  `gorm:"column:assigned_at;not null"`
	ResolvedAt *time.Time `gorm:"column:resolved_at"`
}

func (PendingApprover) TableName() string {
	return "pending_approvers"
}

// History rows are insert-only.
type History struct {
	ID         int64           `gorm:"primaryKey"`
	ExpenseID  int64           `gorm:"column:expense_id;not null;index"`
	Level      int             `gorm:"column:level;not null"`
	ApproverID *int64          `gorm:"column:approver_id"`
	Action     string          `gorm:"column:action;not null"`
	Comments   string          `gorm:"column:comments"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null"`
}

func (History) TableName() string {
	return "approval_history"
}
