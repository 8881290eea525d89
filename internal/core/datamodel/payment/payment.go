package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID          int64           `gorm:"primaryKey"`
	ExpenseID   int64           `gorm:"column:expense_id;not null;uniqueIndex"`
	Reference   string          `gorm:"column:reference;not null;uniqueIndex"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null"`
	Currency    string          `gorm:"column:currency;not null"`
	PaymentDate time.Time       `gorm:"column:payment_date;not null"`
	ProcessedBy int64           `gorm:"column:processed_by;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Payment) TableName() string {
	return "payments"
}
