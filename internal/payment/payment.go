package payment

import (
	"context"
	"time"

	paymentDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
)

// Payment is the finance record written when an expense is paid out. Rows
// are created only by the workflow engine inside the payment transition.
type Payment struct {
	ID          int64           `json:"id"`
	ExpenseID   int64           `json:"expense_id"`
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaymentDate time.Time       `json:"payment_date"`
	ProcessedBy int64           `json:"processed_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

func FromDatamodel(row *paymentDatamodel.Payment) *Payment {
	return &Payment{
		ID:          row.ID,
		ExpenseID:   row.ExpenseID,
		Reference:   row.Reference,
		Amount:      row.Amount,
		Currency:    row.Currency,
		PaymentDate: row.PaymentDate,
		ProcessedBy: row.ProcessedBy,
		CreatedAt:   row.CreatedAt,
	}
}

// Total is the sum paid per currency.
type Total struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Count    int             `json:"count"`
}

type Repository interface {
	GetByExpenseID(ctx context.Context, expenseID int64) (*Payment, error)
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)
	Totals(ctx context.Context, from, to time.Time) ([]Total, error)
}
