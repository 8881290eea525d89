package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
	"golang.org/x/crypto/bcrypt"
)

type Repository interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
}

type ListFilter struct {
	SiteID *int64
	Roles  []Role
	Active *bool
	Limit  int
	Offset int
}

// SiteChecker confirms a site exists before a user is bound to it.
type SiteChecker interface {
	Exists(ctx context.Context, siteID int64) (bool, error)
}

type Service struct {
	repo       Repository
	sites      SiteChecker
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo Repository, sites SiteChecker, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		sites:      sites,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

func (s *Service) Create(ctx context.Context, actor Actor, dto CreateUserDTO) (*User, error) {
	if !actor.Can(CapManageUsers) {
		return nil, internal.ErrNotAuthorized
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	role, _ := ParseRole(dto.Role)
	siteID := dto.SiteID
	if role.CrossSite() {
		siteID = nil
	}
	if siteID != nil {
		ok, err := s.sites.Exists(ctx, *siteID)
		if err != nil {
			return nil, internal.NewInternalError("failed to check site", err)
		}
		if !ok {
			return nil, internal.ErrSiteNotFound
		}
	}

	existing, err := s.repo.GetByEmail(ctx, dto.Email)
	if err != nil && !internal.IsNotFound(err) {
		return nil, internal.NewInternalError("failed to check email", err)
	}
	if existing != nil {
		return nil, internal.NewConflictError("email already registered", internal.ErrCodeDuplicateEmail)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	u := &User{
		Email:        dto.Email,
		Name:         dto.Name,
		PasswordHash: string(hash),
		Role:         role,
		SiteID:       siteID,
		Department:   dto.Department,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		s.logger.Error("failed to create user", "error", err, "email", dto.Email)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.logger.Info("user created", "user_id", u.ID, "role", u.Role, "created_by", actor.ID)
	return u, nil
}

func (s *Service) Update(ctx context.Context, actor Actor, userID int64, dto UpdateUserDTO) (*User, error) {
	if !actor.Can(CapManageUsers) {
		return nil, internal.ErrNotAuthorized
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if dto.Role != nil {
		role, ok := ParseRole(*dto.Role)
		if !ok {
			return nil, internal.NewValidationFieldError("role", "role is not recognised", internal.ErrCodeInvalidRole)
		}
		u.Role = role
	}
	if dto.SiteID != nil {
		u.SiteID = dto.SiteID
	}
	if u.Role.CrossSite() {
		u.SiteID = nil
	} else if u.SiteID == nil {
		return nil, internal.NewValidationFieldError("site_id", "site_id is required for site-scoped roles", internal.ErrCodeMissingSiteForSiteScoped)
	}
	if dto.IsActive != nil {
		u.IsActive = *dto.IsActive
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, internal.NewInternalError("failed to update user", err)
	}

	s.logger.Info("user updated", "user_id", u.ID, "role", u.Role, "is_active", u.IsActive, "updated_by", actor.ID)
	return u, nil
}

func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) ([]*User, error) {
	if !actor.Can(CapManageUsers) {
		return nil, internal.ErrNotAuthorized
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// GetByIDs is used by notification recipient resolution.
func (s *Service) GetByIDs(ctx context.Context, ids []int64) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.GetByIDs(ctx, ids)
}

// ListWithCapability returns active users at siteID (plus cross-site users)
// whose role grants c.
func (s *Service) ListWithCapability(ctx context.Context, siteID int64, c Capability) ([]*User, error) {
	active := true
	users, err := s.repo.List(ctx, ListFilter{Roles: RolesWith(c), Active: &active, Limit: 1000})
	if err != nil {
		return nil, err
	}

	out := make([]*User, 0, len(users))
	for _, u := range users {
		if u.Actor().InSite(siteID) {
			out = append(out, u)
		}
	}
	return out, nil
}
