package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/dashboard"
	"github.com/frahmantamala/expense-approval/internal/workflow"
	"github.com/jmoiron/sqlx"
)

// Repository answers dashboard queries with plain SQL over sqlx. Queries
// are written with ? and rebound for the driver.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const siteBudgetQuery = `
SELECT id, code, name, monthly_budget, yearly_budget, monthly_spend, yearly_spend,
       expense_count, alert_threshold, COALESCE(stats_month, '') AS stats_month,
       COALESCE(stats_year, 0) AS stats_year
FROM sites
WHERE id = ?`

func (r *Repository) SiteBudget(ctx context.Context, siteID int64) (*dashboard.SiteBudgetRow, error) {
	var row dashboard.SiteBudgetRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(siteBudgetQuery), siteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, internal.ErrSiteNotFound
		}
		return nil, err
	}
	return &row, nil
}

const statusCountsQuery = `
SELECT status, COUNT(*) AS count
FROM expenses
WHERE site_id = ? AND is_deleted = ?
GROUP BY status
ORDER BY status`

func (r *Repository) StatusCounts(ctx context.Context, siteID int64) ([]dashboard.StatusCount, error) {
	var counts []dashboard.StatusCount
	err := r.db.SelectContext(ctx, &counts, r.db.Rebind(statusCountsQuery), siteID, false)
	return counts, err
}

const categorySpendQuery = `
SELECT category, SUM(amount) AS amount, COUNT(*) AS entries
FROM site_spend_entries
WHERE site_id = ? AND applied_at >= ? AND applied_at < ?
GROUP BY category
ORDER BY category`

func (r *Repository) CategorySpend(ctx context.Context, siteID int64, from, to time.Time) ([]dashboard.CategorySpend, error) {
	var spend []dashboard.CategorySpend
	err := r.db.SelectContext(ctx, &spend, r.db.Rebind(categorySpendQuery), siteID, from, to)
	return spend, err
}

const inboxCountQuery = `
SELECT COUNT(DISTINCT expense_id)
FROM pending_approvers
WHERE approver_id = ? AND status IN (?)`

func (r *Repository) InboxCount(ctx context.Context, approverID int64) (int, error) {
	statuses := make([]string, len(workflow.ActivePendingStatuses))
	for i, s := range workflow.ActivePendingStatuses {
		statuses[i] = string(s)
	}

	query, args, err := sqlx.In(inboxCountQuery, approverID, statuses)
	if err != nil {
		return 0, err
	}
	var count int
	err = r.db.GetContext(ctx, &count, r.db.Rebind(query), args...)
	return count, err
}
