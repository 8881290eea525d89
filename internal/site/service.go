package site

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Site, error)
	GetByCode(ctx context.Context, code string) (*Site, error)
	List(ctx context.Context, activeOnly bool) ([]*Site, error)
	Create(ctx context.Context, s *Site) error
	Update(ctx context.Context, s *Site) error
	ResetStats(ctx context.Context, period Period, now time.Time) (int64, error)
}

type Service struct {
	repo                       Repository
	defaultDuplicateWindowDays int
	logger                     *slog.Logger
}

func NewService(repo Repository, defaultDuplicateWindowDays int, logger *slog.Logger) *Service {
	return &Service{
		repo:                       repo,
		defaultDuplicateWindowDays: defaultDuplicateWindowDays,
		logger:                     logger,
	}
}

func (s *Service) Create(ctx context.Context, actor user.Actor, dto CreateSiteDTO) (*Site, error) {
	if !actor.Can(user.CapManageSites) {
		return nil, internal.ErrNotAuthorized
	}

	st := dto.toSite()
	if st.Budget.AlertThreshold == 0 {
		st.Budget.AlertThreshold = 80
	}
	if st.Policy.DuplicateWindowDays == 0 {
		st.Policy.DuplicateWindowDays = s.defaultDuplicateWindowDays
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByCode(ctx, st.Code)
	if err != nil && !internal.IsNotFound(err) {
		return nil, internal.NewInternalError("failed to check site code", err)
	}
	if existing != nil {
		return nil, internal.NewConflictError(fmt.Sprintf("site code %s already exists", st.Code), internal.ErrCodeDuplicateSiteCode)
	}

	now := time.Now().UTC()
	st.Stats.Month = StatsMonth(now)
	st.Stats.Year = now.Year()

	if err := s.repo.Create(ctx, st); err != nil {
		return nil, internal.NewInternalError("failed to create site", err)
	}

	s.logger.Info("site created", "site_id", st.ID, "code", st.Code, "created_by", actor.ID)
	return st, nil
}

func (s *Service) Update(ctx context.Context, actor user.Actor, id int64, dto UpdateSiteDTO) (*Site, error) {
	if !actor.Can(user.CapManageSites) && !(actor.Can(user.CapManageBudgets) && dto.onlyBudget()) {
		return nil, internal.ErrNotAuthorized
	}

	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	dto.apply(st)
	if err := st.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, st); err != nil {
		return nil, internal.NewInternalError("failed to update site", err)
	}

	s.logger.Info("site updated", "site_id", st.ID, "updated_by", actor.ID)
	return st, nil
}

func (d UpdateSiteDTO) onlyBudget() bool {
	return d.Name == nil && d.City == nil && d.Policy == nil && d.IsActive == nil
}

func (s *Service) Get(ctx context.Context, actor user.Actor, id int64) (*Site, error) {
	if !actor.InSite(id) {
		return nil, internal.ErrNotAuthorized
	}
	return s.repo.GetByID(ctx, id)
}

// GetByID skips the actor check; callers inside the domain use it.
func (s *Service) GetByID(ctx context.Context, id int64) (*Site, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, actor user.Actor) ([]*Site, error) {
	sites, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, err
	}
	if actor.Role.CrossSite() {
		return sites, nil
	}

	out := make([]*Site, 0, 1)
	for _, st := range sites {
		if actor.InSite(st.ID) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if err == nil {
		return true, nil
	}
	if internal.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// ResetStats zeroes running totals for sites whose stats belong to an earlier
// period than now. Running it twice in the same period is a no-op.
func (s *Service) ResetStats(ctx context.Context, period Period, now time.Time) (int64, error) {
	switch period {
	case PeriodMonthly, PeriodYearly:
	default:
		return 0, internal.NewValidationError(fmt.Sprintf("unknown stats period %q", period), internal.ErrCodeValidationFailed)
	}

	n, err := s.repo.ResetStats(ctx, period, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("reset %s stats: %w", period, err)
	}

	s.logger.Info("site stats reset", "period", period, "sites", n)
	return n, nil
}
