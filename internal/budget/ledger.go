package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/shopspring/decimal"
)

// SpendStore persists spend inside the caller's transaction.
// InsertSpendEntry reports false when the expense was already counted.
type SpendStore interface {
	InsertSpendEntry(ctx context.Context, expenseID, siteID int64, category string, amount decimal.Decimal, at time.Time) (bool, error)
	AddSiteSpend(ctx context.Context, siteID int64, category string, amount decimal.Decimal) error
}

// Alert is raised when monthly utilisation crosses the site alert threshold.
type Alert struct {
	SiteID            int64
	SiteCode          string
	Threshold         int
	UtilizationBefore decimal.Decimal
	UtilizationAfter  decimal.Decimal
	MonthlySpend      decimal.Decimal
	MonthlyBudget     decimal.Decimal
}

type Ledger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{logger: logger, now: time.Now}
}

// RequiredLevel maps an amount onto the site threshold ladder. Amounts above
// L3 still require level 3.
func (l *Ledger) RequiredLevel(s *site.Site, amount decimal.Decimal) int {
	t := s.Thresholds
	switch {
	case amount.LessThanOrEqual(t.AutoApproval):
		return 0
	case amount.LessThanOrEqual(t.L1):
		return 1
	case amount.LessThanOrEqual(t.L2):
		return 2
	default:
		return 3
	}
}

// IsWithinBudget checks the monthly, yearly and category budgets. A budget of
// zero is treated as unconfigured.
func (l *Ledger) IsWithinBudget(s *site.Site, amount decimal.Decimal, category string) bool {
	if exceeds(s.Stats.MonthlySpend, amount, s.Budget.Monthly) {
		return false
	}
	if exceeds(s.Stats.YearlySpend, amount, s.Budget.Yearly) {
		return false
	}
	if limit, ok := s.Budget.Categories[category]; ok {
		if exceeds(s.Stats.CategorySpend[category], amount, limit) {
			return false
		}
	}
	return true
}

func exceeds(spent, amount, budget decimal.Decimal) bool {
	if !budget.IsPositive() {
		return false
	}
	return spent.Add(amount).GreaterThan(budget)
}

// ApplySpend counts amount against the site once per expense. It returns
// applied=false when the expense was already counted. s.Stats is updated in
// place so the caller sees the new totals.
func (l *Ledger) ApplySpend(ctx context.Context, store SpendStore, s *site.Site, expenseID int64, amount decimal.Decimal, category string) (*Alert, bool, error) {
	inserted, err := store.InsertSpendEntry(ctx, expenseID, s.ID, category, amount, l.now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("record spend entry: %w", err)
	}
	if !inserted {
		l.logger.Info("spend already applied", "expense_id", expenseID, "site_id", s.ID)
		return nil, false, nil
	}

	if err := store.AddSiteSpend(ctx, s.ID, category, amount); err != nil {
		return nil, false, fmt.Errorf("add site spend: %w", err)
	}

	before := s.MonthlyUtilization()
	s.Stats.MonthlySpend = s.Stats.MonthlySpend.Add(amount)
	s.Stats.YearlySpend = s.Stats.YearlySpend.Add(amount)
	if s.Stats.CategorySpend == nil {
		s.Stats.CategorySpend = map[string]decimal.Decimal{}
	}
	s.Stats.CategorySpend[category] = s.Stats.CategorySpend[category].Add(amount)
	s.Stats.ExpenseCount++
	after := s.MonthlyUtilization()

	l.logger.Info("spend applied",
		"expense_id", expenseID,
		"site_id", s.ID,
		"amount", amount.StringFixed(2),
		"monthly_utilization", after.StringFixed(2))

	threshold := decimal.NewFromInt(int64(s.Budget.AlertThreshold))
	if s.Budget.AlertThreshold > 0 && before.LessThan(threshold) && after.GreaterThanOrEqual(threshold) {
		return &Alert{
			SiteID:            s.ID,
			SiteCode:          s.Code,
			Threshold:         s.Budget.AlertThreshold,
			UtilizationBefore: before,
			UtilizationAfter:  after,
			MonthlySpend:      s.Stats.MonthlySpend,
			MonthlyBudget:     s.Budget.Monthly,
		}, true, nil
	}
	return nil, true, nil
}
