package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/user"
	"golang.org/x/crypto/bcrypt"
)

// UserLookup is the slice of the user repository auth needs.
type UserLookup interface {
	GetByID(ctx context.Context, userID int64) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type Service struct {
	users          UserLookup
	tokenGenerator TokenGenerator
	accessTTLSecs  int64
	logger         *slog.Logger
}

func NewService(users UserLookup, tokenGen *JWTTokenGenerator, logger *slog.Logger) *Service {
	return &Service{
		users:          users,
		tokenGenerator: tokenGen,
		accessTTLSecs:  int64(tokenGen.AccessTokenTTL.Seconds()),
		logger:         logger,
	}
}

// Authenticate checks credentials and issues a token pair. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.logger.Error("failed to load user for login", "error", err)
		}
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	s.logger.Info("user authenticated", "user_id", u.ID, "role", u.Role)
	return s.issue(u)
}

func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	u, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return AuthTokens{}, err
	}
	return s.issue(u)
}

// Authorize resolves an access token to the acting user. The role and site
// come from the current user record.
func (s *Service) Authorize(ctx context.Context, accessToken string) (user.Actor, error) {
	claims, err := s.tokenGenerator.ValidateAccessToken(accessToken)
	if err != nil {
		return user.Actor{}, err
	}

	u, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return user.Actor{}, err
	}
	return u.Actor(), nil
}

func (s *Service) Me(ctx context.Context, actor user.Actor) (*user.User, error) {
	return s.users.GetByID(ctx, actor.ID)
}

func (s *Service) userFromClaims(ctx context.Context, claims *Claims) (*user.User, error) {
	id, err := claims.ParsedUserID()
	if err != nil {
		return nil, internal.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}
	return u, nil
}

func (s *Service) issue(u *user.User) (AuthTokens, error) {
	access, err := s.tokenGenerator.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to sign access token", err)
	}
	refresh, err := s.tokenGenerator.GenerateRefreshToken(u.ID, u.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to sign refresh token", err)
	}
	return AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTLSecs,
	}, nil
}
