package workflow

import (
	"context"
	"time"

	"github.com/frahmantamala/expense-approval/internal/budget"
	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/policy"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/shopspring/decimal"
)

type PendingStatus string

const (
	PendingStatusPending    PendingStatus = "pending"
	PendingStatusInProgress PendingStatus = "in_progress"
	PendingStatusCompleted  PendingStatus = "completed"
	PendingStatusCancelled  PendingStatus = "cancelled"
)

// ActivePendingStatuses are the statuses of an obligation still owed.
var ActivePendingStatuses = []PendingStatus{PendingStatusPending, PendingStatusInProgress}

func (s PendingStatus) Active() bool {
	return s == PendingStatusPending || s == PendingStatusInProgress
}

// PendingApprover ties one approver to one expense at one level.
type PendingApprover struct {
	ID         int64         `json:"id"`
	ExpenseID  int64         `json:"expense_id"`
	Level      int           `json:"level"`
	ApproverID int64         `json:"approver_id"`
	Status     PendingStatus `json:"status"`
	AssignedAt time.Time     `json:"assigned_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

type Action string

const (
	ActionApproved         Action = "approved"
	ActionRejected         Action = "rejected"
	ActionAutoApproved     Action = "auto_approved"
	ActionPaymentProcessed Action = "payment_processed"
	ActionCancelled        Action = "cancelled"
)

// PaymentLevel is the history level recorded for the finance step.
const PaymentLevel = user.MaxApprovalLevel + 1

// HistoryEntry is an append-only audit record. ApproverID is nil for entries
// written by the system.
type HistoryEntry struct {
	ID         int64           `json:"id"`
	ExpenseID  int64           `json:"expense_id"`
	Level      int             `json:"level"`
	ApproverID *int64          `json:"approver_id,omitempty"`
	Action     Action          `json:"action"`
	Comments   string          `json:"comments,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Payment struct {
	ExpenseID   int64
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	PaymentDate time.Time
	ProcessedBy int64
}

// Tx is the persistence port inside one atomic transition. Every write made
// through it commits or rolls back together.
type Tx interface {
	GetExpenseForUpdate(ctx context.Context, id int64) (*expense.Expense, error)
	// SaveExpense applies the optimistic version check.
	SaveExpense(ctx context.Context, e *expense.Expense) error
	NumberTaken(ctx context.Context, number string, excludeID int64) (bool, error)
	GetSite(ctx context.Context, siteID int64) (*site.Site, error)

	// ListPendingApprovers returns active rows; level 0 means every level.
	ListPendingApprovers(ctx context.Context, expenseID int64, level int) ([]PendingApprover, error)
	CreatePendingApprovers(ctx context.Context, expenseID int64, level int, approverIDs []int64, at time.Time) error
	// RetirePendingApprovers closes active rows at level (0 means every
	// level). The row of actedBy, if any, is completed; the rest are cancelled.
	RetirePendingApprovers(ctx context.Context, expenseID int64, level int, actedBy *int64, at time.Time) error

	AppendHistory(ctx context.Context, h *HistoryEntry) error
	ActiveApproversForSite(ctx context.Context, siteID int64, level int) ([]int64, error)
	ActiveL3Approvers(ctx context.Context) ([]int64, error)
	// RecordPayment reports false when the expense already has a payment.
	RecordPayment(ctx context.Context, p Payment) (bool, error)

	budget.SpendStore
	policy.Lookup
}

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetExpense(ctx context.Context, id int64) (*expense.Expense, error)
	History(ctx context.Context, expenseID int64) ([]HistoryEntry, error)
	PendingApprovers(ctx context.Context, expenseID int64) ([]PendingApprover, error)
	Inbox(ctx context.Context, approverID int64, limit, offset int) ([]*expense.Expense, error)
}

// Notifier receives committed transitions. Delivery is fire-and-forget;
// *events.EventBus satisfies it.
type Notifier interface {
	Publish(ctx context.Context, event events.Event) error
}

func PendingFromDataModel(m *approvalDatamodel.PendingApprover) PendingApprover {
	return PendingApprover{
		ID:         m.ID,
		ExpenseID:  m.ExpenseID,
		Level:      m.Level,
		ApproverID: m.ApproverID,
		Status:     PendingStatus(m.Status),
		AssignedAt: m.AssignedAt,
		ResolvedAt: m.ResolvedAt,
	}
}

func HistoryFromDataModel(m *approvalDatamodel.History) HistoryEntry {
	return HistoryEntry{
		ID:         m.ID,
		ExpenseID:  m.ExpenseID,
		Level:      m.Level,
		ApproverID: m.ApproverID,
		Action:     Action(m.Action),
		Comments:   m.Comments,
		Amount:     m.Amount,
		CreatedAt:  m.CreatedAt,
	}
}

func HistoryToDataModel(h *HistoryEntry) *approvalDatamodel.History {
	return &approvalDatamodel.History{
		ID:         h.ID,
		ExpenseID:  h.ExpenseID,
		Level:      h.Level,
		ApproverID: h.ApproverID,
		Action:     string(h.Action),
		Comments:   h.Comments,
		Amount:     h.Amount,
		CreatedAt:  h.CreatedAt,
	}
}
