package dashboard

import (
	"github.com/shopspring/decimal"
)

// SiteBudgetRow is the raw budget state of one site.
type SiteBudgetRow struct {
	ID             int64           `db:"id"`
	Code           string          `db:"code"`
	Name           string          `db:"name"`
	MonthlyBudget  decimal.Decimal `db:"monthly_budget"`
	YearlyBudget   decimal.Decimal `db:"yearly_budget"`
	MonthlySpend   decimal.Decimal `db:"monthly_spend"`
	YearlySpend    decimal.Decimal `db:"yearly_spend"`
	ExpenseCount   int             `db:"expense_count"`
	AlertThreshold int             `db:"alert_threshold"`
	StatsMonth     string          `db:"stats_month"`
	StatsYear      int             `db:"stats_year"`
}

type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

type CategorySpend struct {
	Category string          `db:"category" json:"category"`
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Entries  int             `db:"entries" json:"entries"`
}

type SiteSummary struct {
	SiteID             int64           `json:"site_id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Month              string          `json:"month"`
	Year               int             `json:"year"`
	MonthlyBudget      decimal.Decimal `json:"monthly_budget"`
	MonthlySpend       decimal.Decimal `json:"monthly_spend"`
	MonthlyUtilization decimal.Decimal `json:"monthly_utilization"`
	YearlyBudget       decimal.Decimal `json:"yearly_budget"`
	YearlySpend        decimal.Decimal `json:"yearly_spend"`
	YearlyUtilization  decimal.Decimal `json:"yearly_utilization"`
	AlertThreshold     int             `json:"alert_threshold"`
	AboveAlert         bool            `json:"above_alert"`
	ExpenseCount       int             `json:"expense_count"`
	StatusCounts       map[string]int  `json:"status_counts"`
}

var hundred = decimal.NewFromInt(100)

// utilization is spend/budget as a percentage rounded to 2dp; zero budget
// reports zero.
func utilization(spend, budget decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}
	return spend.Div(budget).Mul(hundred).Round(2)
}

func summaryFrom(row *SiteBudgetRow, counts []StatusCount) *SiteSummary {
	s := &SiteSummary{
		SiteID:             row.ID,
		Code:               row.Code,
		Name:               row.Name,
		Month:              row.StatsMonth,
		Year:               row.StatsYear,
		MonthlyBudget:      row.MonthlyBudget,
		MonthlySpend:       row.MonthlySpend,
		MonthlyUtilization: utilization(row.MonthlySpend, row.MonthlyBudget),
		YearlyBudget:       row.YearlyBudget,
		YearlySpend:        row.YearlySpend,
		YearlyUtilization:  utilization(row.YearlySpend, row.YearlyBudget),
		AlertThreshold:     row.AlertThreshold,
		ExpenseCount:       row.ExpenseCount,
		StatusCounts:       make(map[string]int, len(counts)),
	}
	s.AboveAlert = row.AlertThreshold > 0 &&
		s.MonthlyUtilization.GreaterThanOrEqual(decimal.NewFromInt(int64(row.AlertThreshold)))
	for _, c := range counts {
		s.StatusCounts[c.Status] = c.Count
	}
	return s
}
