package site

import (
	"strings"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	siteDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/site"
	"github.com/shopspring/decimal"
)

type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

const monthLayout = "2006-01"

// Thresholds is the approval ladder. It must be strictly increasing.
type Thresholds struct {
	AutoApproval decimal.Decimal `json:"auto_approval_limit"`
	L1           decimal.Decimal `json:"l1_threshold"`
	L2           decimal.Decimal `json:"l2_threshold"`
	L3           decimal.Decimal `json:"l3_threshold"`
}

func (t Thresholds) Validate() error {
	if t.AutoApproval.IsNegative() {
		return internal.ErrBudgetConfig.WithMessage("auto approval limit cannot be negative")
	}
	if !(t.AutoApproval.LessThan(t.L1) && t.L1.LessThan(t.L2) && t.L2.LessThan(t.L3)) {
		return internal.ErrBudgetConfig
	}
	return nil
}

type Budget struct {
	Monthly        decimal.Decimal            `json:"monthly"`
	Yearly         decimal.Decimal            `json:"yearly"`
	Categories     map[string]decimal.Decimal `json:"categories,omitempty"`
	AlertThreshold int                        `json:"alert_threshold"`
}

func (b Budget) Validate() error {
	if b.Monthly.IsNegative() || b.Yearly.IsNegative() {
		return internal.NewBudgetConfigError("budgets cannot be negative")
	}
	for name, v := range b.Categories {
		if v.IsNegative() {
			return internal.NewBudgetConfigError("category budget for " + name + " cannot be negative")
		}
	}
	if b.AlertThreshold < 1 || b.AlertThreshold > 100 {
		return internal.NewBudgetConfigError("alert threshold must be between 1 and 100")
	}
	return nil
}

type Policy struct {
	DuplicateWindowDays int                        `json:"duplicate_window_days"`
	CategoryLimits      map[string]decimal.Decimal `json:"category_limits,omitempty"`
	CashMax             *decimal.Decimal           `json:"cash_max,omitempty"`
	GlobalMax           *decimal.Decimal           `json:"global_max,omitempty"`
	DirectorThresholds  map[string]decimal.Decimal `json:"director_thresholds,omitempty"`
	WeekendDisallowed   []string                   `json:"weekend_disallowed,omitempty"`
}

func (p Policy) CategoryLimit(category string) (decimal.Decimal, bool) {
	v, ok := lookupFold(p.CategoryLimits, category)
	return v, ok
}

func (p Policy) DirectorThreshold(category string) (decimal.Decimal, bool) {
	v, ok := lookupFold(p.DirectorThresholds, category)
	return v, ok
}

func (p Policy) WeekendDisallowedFor(category string) bool {
	for _, c := range p.WeekendDisallowed {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

func lookupFold(m map[string]decimal.Decimal, key string) (decimal.Decimal, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return decimal.Zero, false
}

// Stats are the running totals. Only the budget ledger and the reset job
// write them.
type Stats struct {
	MonthlySpend  decimal.Decimal            `json:"monthly_spend"`
	YearlySpend   decimal.Decimal            `json:"yearly_spend"`
	CategorySpend map[string]decimal.Decimal `json:"category_spend,omitempty"`
	ExpenseCount  int                        `json:"expense_count"`
	Month         string                     `json:"month"`
	Year          int                        `json:"year"`
}

type Site struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	City       string     `json:"city,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Budget     Budget     `json:"budget"`
	Thresholds Thresholds `json:"thresholds"`
	Policy     Policy     `json:"policy"`
	Stats      Stats      `json:"stats"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Site) Validate() error {
	if strings.TrimSpace(s.Code) == "" || strings.TrimSpace(s.Name) == "" {
		return internal.NewValidationError("site code and name are required", internal.ErrCodeValidationFailed)
	}
	if err := s.Thresholds.Validate(); err != nil {
		return err
	}
	if err := s.Budget.Validate(); err != nil {
		return err
	}
	if s.Policy.DuplicateWindowDays < 0 {
		return internal.NewBudgetConfigError("duplicate window cannot be negative")
	}
	if (s.Latitude == nil) != (s.Longitude == nil) {
		return internal.NewValidationError("latitude and longitude must be set together", internal.ErrCodeValidationFailed)
	}
	return nil
}

func (s *Site) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// MonthlyUtilization returns monthly spend as a percentage of the monthly
// budget. A zero budget reports zero.
func (s *Site) MonthlyUtilization() decimal.Decimal {
	return utilization(s.Stats.MonthlySpend, s.Budget.Monthly)
}

func (s *Site) YearlyUtilization() decimal.Decimal {
	return utilization(s.Stats.YearlySpend, s.Budget.Yearly)
}

func utilization(spend, budget decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}
	return spend.Div(budget).Mul(decimal.NewFromInt(100)).Round(2)
}

func StatsMonth(t time.Time) string {
	return t.Format(monthLayout)
}

func ToDataModel(s *Site) *siteDatamodel.Site {
	return &siteDatamodel.Site{
		ID:                s.ID,
		Code:              s.Code,
		Name:              s.Name,
		City:              s.City,
		Latitude:          s.Latitude,
		Longitude:         s.Longitude,
		MonthlyBudget:     s.Budget.Monthly,
		YearlyBudget:      s.Budget.Yearly,
		CategoryBudgets:   s.Budget.Categories,
		AlertThreshold:    s.Budget.AlertThreshold,
		AutoApprovalLimit: s.Thresholds.AutoApproval,
		L1Threshold:       s.Thresholds.L1,
		L2Threshold:       s.Thresholds.L2,
		L3Threshold:       s.Thresholds.L3,
		Policy: siteDatamodel.Policy{
			DuplicateWindowDays: s.Policy.DuplicateWindowDays,
			CategoryLimits:      s.Policy.CategoryLimits,
			CashMax:             s.Policy.CashMax,
			GlobalMax:           s.Policy.GlobalMax,
			DirectorThresholds:  s.Policy.DirectorThresholds,
			WeekendDisallowed:   s.Policy.WeekendDisallowed,
		},
		MonthlySpend:  s.Stats.MonthlySpend,
		YearlySpend:   s.Stats.YearlySpend,
		CategorySpend: s.Stats.CategorySpend,
		ExpenseCount:  s.Stats.ExpenseCount,
		StatsMonth:    s.Stats.Month,
		StatsYear:     s.Stats.Year,
		IsActive:      s.IsActive,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func FromDataModel(m *siteDatamodel.Site) *Site {
	return &Site{
		ID:        m.ID,
		Code:      m.Code,
		Name:      m.Name,
		City:      m.City,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Budget: Budget{
			Monthly:        m.MonthlyBudget,
			Yearly:         m.YearlyBudget,
			Categories:     m.CategoryBudgets,
			AlertThreshold: m.AlertThreshold,
		},
		Thresholds: Thresholds{
			AutoApproval: m.AutoApprovalLimit,
			L1:           m.L1Threshold,
			L2:           m.L2Threshold,
			L3:           m.L3Threshold,
		},
		Policy: Policy{
			DuplicateWindowDays: m.Policy.DuplicateWindowDays,
			CategoryLimits:      m.Policy.CategoryLimits,
			CashMax:             m.Policy.CashMax,
			GlobalMax:           m.Policy.GlobalMax,
			DirectorThresholds:  m.Policy.DirectorThresholds,
			WeekendDisallowed:   m.Policy.WeekendDisallowed,
		},
		Stats: Stats{
			MonthlySpend:  m.MonthlySpend,
			YearlySpend:   m.YearlySpend,
			CategorySpend: m.CategorySpend,
			ExpenseCount:  m.ExpenseCount,
			Month:         m.StatsMonth,
			Year:          m.StatsYear,
		},
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

var ErrNotFound = internal.ErrSiteNotFound
