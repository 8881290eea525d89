package site

import (
	"time"

	"github.com/shopspring/decimal"
)

type Site struct {
	ID                int64                      `gorm:"primaryKey"`
	Code              string                     `gorm:"column:code;uniqueIndex;not null"`
	Name              string                     `gorm:"column:name;not null"`
	City              string                     `gorm:"column:city"`
	Latitude          *float64                   `gorm:"column:latitude"`
	Longitude         *float64                   `gorm:"column:longitude"`
	MonthlyBudget     decimal.Decimal            `gorm:"column:monthly_budget;type:decimal(18,2);not null"`
	YearlyBudget      decimal.Decimal            `gorm:"column:yearly_budget;type:decimal(18,2);not null"`
	CategoryBudgets   map[string]decimal.Decimal `gorm:"column:category_budgets;serializer:json"`
	AlertThreshold    int                        `gorm:"column:alert_threshold;not null;default:80"`
	AutoApprovalLimit decimal.Decimal            `gorm:"column:auto_approval_limit;type:decimal(18,2);not null"`
	L1Threshold       decimal.Decimal            `gorm:"column:l1_threshold;type:decimal(18,2);not null"`
	L2Threshold       decimal.Decimal            `gorm:"column:l2_threshold;type:decimal(18,2);not null"`
	L3Threshold       decimal.Decimal            `gorm:"column:l3_threshold;type:decimal(18,2);not null"`
	Policy            Policy                     `gorm:"column:policy;serializer:json"`
	MonthlySpend      decimal.Decimal            `gorm:"column:monthly_spend;type:decimal(18,2);not null;default:0"`
	YearlySpend       decimal.Decimal            `gorm:"column:yearly_spend;type:decimal(18,2);not null;default:0"`
	CategorySpend     map[string]decimal.Decimal `gorm:"column:category_spend;serializer:json"`
	ExpenseCount      int                        `gorm:"column:expense_count;not null;default:0"`
	StatsMonth        string                     `gorm:"column:stats_month"`
	StatsYear         int                        `gorm:"column:stats_year"`
	IsActive          bool                       `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Site) TableName() string {
	return "sites"
}

type Policy struct {
	DuplicateWindowDays int                        `json:"duplicate_window_days"`
	CategoryLimits      map[string]decimal.Decimal `json:"category_limits,omitempty"`
	CashMax             *decimal.Decimal           `json:"cash_max,omitempty"`
	GlobalMax           *decimal.Decimal           `json:"global_max,omitempty"`
	DirectorThresholds  map[string]decimal.Decimal `json:"director_thresholds,omitempty"`
	WeekendDisallowed   []string                   `json:"weekend_disallowed,omitempty"`
}

// SpendEntry marks an expense whose amount has been counted against the site
// budget. ExpenseID is unique so a second application is a no-op.
type SpendEntry struct {
	ID        int64           `gorm:"primaryKey"`
	ExpenseID int64           `gorm:"column:expense_id;uniqueIndex;not null"`
	SiteID    int64           `gorm:"column:site_id;not null;index"`
	Category  string          `gorm:"column:category"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null"`
	AppliedAt time.Time       `gorm:"column:applied_at;not null"`
}

func (SpendEntry) TableName() string {
	return "site_spend_entries"
}
