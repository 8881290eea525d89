package expense

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/policy"
	"github.com/frahmantamala/expense-approval/internal/user"
)

// Repository is the expense store. Update must apply the optimistic version
// check and bump Version on success.
type Repository interface {
	Create(ctx context.Context, e *Expense) error
	NextNumber(ctx context.Context) (string, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	GetByID(ctx context.Context, id int64) (*Expense, error)
	Update(ctx context.Context, e *Expense) error
	SoftDelete(ctx context.Context, id int64, version int) error
	List(ctx context.Context, filter ListFilter) ([]*Expense, error)
}

type SiteChecker interface {
	Exists(ctx context.Context, siteID int64) (bool, error)
}

type CategoryChecker interface {
	IsValidCategory(name string) bool
}

type Service struct {
	repo       Repository
	sites      SiteChecker
	categories CategoryChecker
	logger     *slog.Logger
}

func NewService(repo Repository, sites SiteChecker, categories CategoryChecker, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		sites:      sites,
		categories: categories,
		logger:     logger,
	}
}

func (s *Service) CreateDraft(ctx context.Context, actor user.Actor, dto CreateDraftDTO) (*Expense, error) {
	if !actor.Can(user.CapCreateExpense) {
		return nil, internal.ErrNotAuthorized
	}
	if err := dto.Validate(); err != nil {
		s.logger.Warn("draft validation failed", "error", err, "user_id", actor.ID)
		return nil, err
	}
	if err := s.checkCategory(dto.Category); err != nil {
		return nil, err
	}

	siteID, err := s.resolveSite(ctx, actor, dto.SiteID)
	if err != nil {
		return nil, err
	}

	number, err := s.resolveNumber(ctx, dto.Number)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	e := &Expense{
		Number:      number,
		SubmitterID: actor.ID,
		SiteID:      siteID,
		Status:      StatusDraft,
		PolicyFlags: []string{},
		Version:     1,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	dto.apply(e, policy.HashReceipt)

	if err := s.repo.Create(ctx, e); err != nil {
		if internal.IsDuplicate(err) {
			return nil, err
		}
		s.logger.Error("failed to create draft", "error", err, "user_id", actor.ID)
		return nil, internal.NewInternalError("failed to create expense", err)
	}

	s.logger.Info("draft created",
		"expense_id", e.ID,
		"number", e.Number,
		"user_id", actor.ID,
		"site_id", e.SiteID,
		"amount", e.Amount.StringFixed(2))
	return e, nil
}

func (s *Service) UpdateDraft(ctx context.Context, actor user.Actor, id int64, dto UpdateDraftDTO) (*Expense, error) {
	e, err := s.ownedDraft(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if dto.Version != 0 && dto.Version != e.Version {
		return nil, internal.ErrConcurrentModification
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkCategory(dto.Category); err != nil {
		return nil, err
	}

	dto.apply(e, policy.HashReceipt)
	e.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, e); err != nil {
		if internal.IsInvalidState(err) {
			return nil, err
		}
		return nil, internal.NewInternalError("failed to update expense", err)
	}

	s.logger.Info("draft updated", "expense_id", e.ID, "user_id", actor.ID, "version", e.Version)
	return e, nil
}

// DeleteDraft soft-deletes so the audit trail survives.
func (s *Service) DeleteDraft(ctx context.Context, actor user.Actor, id int64) error {
	e, err := s.ownedDraft(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, e.ID, e.Version); err != nil {
		if internal.IsInvalidState(err) {
			return err
		}
		return internal.NewInternalError("failed to delete expense", err)
	}

	s.logger.Info("draft deleted", "expense_id", e.ID, "user_id", actor.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, actor user.Actor, id int64) (*Expense, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.CanView(actor) {
		s.logger.Warn("unauthorized access to expense", "expense_id", id, "user_id", actor.ID)
		return nil, internal.ErrNotAuthorized
	}
	return e, nil
}

// List scopes the filter to what the actor may see. mine restricts any actor
// to their own expenses.
func (s *Service) List(ctx context.Context, actor user.Actor, filter ListFilter, mine bool) ([]*Expense, error) {
	switch {
	case mine:
		filter.SubmitterID = &actor.ID
	case actor.Can(user.CapViewAllExpense):
	case actor.Can(user.CapViewSiteExpense) && actor.SiteID != nil:
		if filter.SiteID != nil && *filter.SiteID != *actor.SiteID {
			return nil, internal.ErrNotAuthorized
		}
		filter.SiteID = actor.SiteID
	default:
		filter.SubmitterID = &actor.ID
	}

	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}

	expenses, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list expenses", "error", err, "user_id", actor.ID)
		return nil, internal.NewInternalError("failed to list expenses", err)
	}
	return expenses, nil
}

func (s *Service) ownedDraft(ctx context.Context, actor user.Actor, id int64) (*Expense, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsOwnedBy(actor.ID) {
		return nil, internal.ErrNotAuthorized
	}
	if e.Status != StatusDraft {
		return nil, internal.ErrInvalidState.WithMessage(fmt.Sprintf("expense is %s, only drafts can be edited", e.Status))
	}
	return e, nil
}

func (s *Service) checkCategory(name string) error {
	if s.categories != nil && !s.categories.IsValidCategory(name) {
		return internal.NewValidationFieldError("category", "category is not active", internal.ErrCodeInvalidCategory)
	}
	return nil
}

func (s *Service) resolveSite(ctx context.Context, actor user.Actor, requested *int64) (int64, error) {
	var siteID int64
	switch {
	case requested != nil:
		siteID = *requested
	case actor.SiteID != nil:
		siteID = *actor.SiteID
	default:
		return 0, internal.NewValidationFieldError("site_id", "site_id is required", internal.ErrCodeMissingSiteForSiteScoped)
	}

	if !actor.InSite(siteID) {
		return 0, internal.ErrNotAuthorized
	}

	ok, err := s.sites.Exists(ctx, siteID)
	if err != nil {
		return 0, internal.NewInternalError("failed to check site", err)
	}
	if !ok {
		return 0, internal.ErrSiteNotFound
	}
	return siteID, nil
}

func (s *Service) resolveNumber(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		if err := validateNumber(requested); err != nil {
			return "", err
		}
		taken, err := s.repo.NumberExists(ctx, requested)
		if err != nil {
			return "", internal.NewInternalError("failed to check expense number", err)
		}
		if taken {
			return "", internal.NewDuplicateNumberError(requested)
		}
		return requested, nil
	}

	// Generated numbers can collide with caller-supplied ones.
	for attempt := 0; attempt < 5; attempt++ {
		number, err := s.repo.NextNumber(ctx)
		if err != nil {
			return "", internal.NewInternalError("failed to allocate expense number", err)
		}
		taken, err := s.repo.NumberExists(ctx, number)
		if err != nil {
			return "", internal.NewInternalError("failed to check expense number", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", internal.NewInternalError("could not allocate a free expense number", nil)
}
