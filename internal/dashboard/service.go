package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type Repository interface {
	SiteBudget(ctx context.Context, siteID int64) (*SiteBudgetRow, error)
	StatusCounts(ctx context.Context, siteID int64) ([]StatusCount, error)
	CategorySpend(ctx context.Context, siteID int64, from, to time.Time) ([]CategorySpend, error)
	InboxCount(ctx context.Context, approverID int64) (int, error)
}

type Service struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, now: time.Now, logger: logger}
}

func (s *Service) SiteSummary(ctx context.Context, actor user.Actor, siteID int64) (*SiteSummary, error) {
	if err := authorizeSite(actor, siteID); err != nil {
		return nil, err
	}

	row, err := s.repo.SiteBudget(ctx, siteID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.StatusCounts(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to count expenses by status: %w", err)
	}
	return summaryFrom(row, counts), nil
}

// CategorySpend totals spend applied to siteID during the current month.
func (s *Service) CategorySpend(ctx context.Context, actor user.Actor, siteID int64) ([]CategorySpend, error) {
	if err := authorizeSite(actor, siteID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	spend, err := s.repo.CategorySpend(ctx, siteID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to sum category spend: %w", err)
	}
	return spend, nil
}

func (s *Service) InboxCount(ctx context.Context, actor user.Actor) (int, error) {
	if !actor.Can(user.CapApproveExpense) {
		return 0, nil
	}
	return s.repo.InboxCount(ctx, actor.ID)
}

func authorizeSite(actor user.Actor, siteID int64) error {
	if !actor.Can(user.CapViewReports) || !actor.InSite(siteID) {
		return internal.ErrNotAuthorized
	}
	return nil
}
