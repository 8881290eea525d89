package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	paymentDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/expense-approval/internal/payment"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByExpenseID(ctx context.Context, expenseID int64) (*payment.Payment, error) {
	var row paymentDatamodel.Payment
	err := r.db.WithContext(ctx).Where("expense_id = ?", expenseID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return payment.FromDatamodel(&row), nil
}

func (r *PaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	var rows []paymentDatamodel.Payment
	err := r.db.WithContext(ctx).
		Where("payment_date >= ? AND payment_date < ?", filter.From, filter.To).
		Order("payment_date DESC, id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*payment.Payment, len(rows))
	for i := range rows {
		out[i] = payment.FromDatamodel(&rows[i])
	}
	return out, nil
}

type totalRow struct {
	Currency string
	Amount   decimal.Decimal
	Count    int
}

func (r *PaymentRepository) Totals(ctx context.Context, from, to time.Time) ([]payment.Total, error) {
	var rows []totalRow
	err := r.db.WithContext(ctx).
		Model(&paymentDatamodel.Payment{}).
		Select("currency, SUM(amount) AS amount, COUNT(*) AS count").
		Where("payment_date >= ? AND payment_date < ?", from, to).
		Group("currency").
		Order("currency").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]payment.Total, len(rows))
	for i, row := range rows {
		out[i] = payment.Total{Currency: row.Currency, Amount: row.Amount.Round(2), Count: row.Count}
	}
	return out, nil
}
