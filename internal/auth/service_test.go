package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

type fakeUsers struct {
	byID map[int64]*user.User
	err  error
}

func newFakeUsers(users ...*user.User) *fakeUsers {
	f := &fakeUsers{byID: map[int64]*user.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func hashed(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return string(h)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		users   *fakeUsers
		tokens  *JWTTokenGenerator
		service *Service
		ctx     context.Context
		siteID  int64
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		siteID = 7
		users = newFakeUsers(
			&user.User{ID: 1, Email: "sub@example.com", PasswordHash: hashed("secret123"), Role: user.RoleSubmitter, SiteID: &siteID, IsActive: true},
			&user.User{ID: 2, Email: "fin@example.com", PasswordHash: hashed("secret123"), Role: user.RoleFinance, IsActive: true},
			&user.User{ID: 3, Email: "gone@example.com", PasswordHash: hashed("secret123"), Role: user.RoleSubmitter, IsActive: false},
		)
		tokens = NewJWTTokenGenerator("access-secret", "refresh-secret", 0, 0)
		service = NewService(users, tokens, discardLogger())
	})

	ginkgo.Describe("Authenticate", func() {
		ginkgo.It("issues a bearer token pair for valid credentials", func() {
			pair, err := service.Authenticate(ctx, LoginDTO{Email: "sub@example.com", Password: "secret123"})

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(pair.AccessToken).NotTo(gomega.BeEmpty())
			gomega.Expect(pair.RefreshToken).NotTo(gomega.BeEmpty())
			gomega.Expect(pair.TokenType).To(gomega.Equal("Bearer"))
			gomega.Expect(pair.ExpiresIn).To(gomega.Equal(int64(900)))

			claims, err := tokens.ValidateAccessToken(pair.AccessToken)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("1"))
			gomega.Expect(claims.Email).To(gomega.Equal("sub@example.com"))
		})

		ginkgo.It("rejects a wrong password", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "sub@example.com", Password: "nope"})
			gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeTrue())
		})

		ginkgo.It("does not reveal unknown emails", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "who@example.com", Password: "secret123"})
			gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeTrue())
		})

		ginkgo.It("rejects inactive users after a correct password", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "gone@example.com", Password: "secret123"})
			gomega.Expect(errors.Is(err, internal.ErrUserInactive)).To(gomega.BeTrue())
		})

		ginkgo.It("returns a validation error for missing fields", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "", Password: ""})

			var appErr *internal.AppError
			gomega.Expect(errors.As(err, &appErr)).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(internal.ErrCodeValidationFailed))
		})

		ginkgo.It("hides repository failures behind invalid credentials", func() {
			users.err = errors.New("connection reset")
			_, err := service.Authenticate(ctx, LoginDTO{Email: "sub@example.com", Password: "secret123"})
			gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("RefreshTokens", func() {
		ginkgo.It("issues a new pair from a refresh token", func() {
			refresh, err := tokens.GenerateRefreshToken(2, "fin@example.com")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			pair, err := service.RefreshTokens(ctx, refresh)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			claims, err := tokens.ValidateAccessToken(pair.AccessToken)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("2"))
		})

		ginkgo.It("refuses an access token in place of a refresh token", func() {
			access, _ := tokens.GenerateAccessToken(2, "fin@example.com")
			_, err := service.RefreshTokens(ctx, access)
			gomega.Expect(errors.Is(err, internal.ErrInvalidToken)).To(gomega.BeTrue())
		})

		ginkgo.It("refuses tokens of deactivated users", func() {
			refresh, _ := tokens.GenerateRefreshToken(3, "gone@example.com")
			_, err := service.RefreshTokens(ctx, refresh)
			gomega.Expect(errors.Is(err, internal.ErrUserInactive)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("Authorize", func() {
		ginkgo.It("resolves the actor from the stored user record", func() {
			access, _ := tokens.GenerateAccessToken(1, "sub@example.com")

			actor, err := service.Authorize(ctx, access)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(actor.ID).To(gomega.Equal(int64(1)))
			gomega.Expect(actor.Role).To(gomega.Equal(user.RoleSubmitter))
			gomega.Expect(*actor.SiteID).To(gomega.Equal(int64(7)))
		})

		ginkgo.It("picks up role changes without reissuing tokens", func() {
			access, _ := tokens.GenerateAccessToken(1, "sub@example.com")
			users.byID[1].Role = user.RoleL1Approver

			actor, err := service.Authorize(ctx, access)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(actor.Can(user.CapApproveExpense)).To(gomega.BeTrue())
		})

		ginkgo.It("rejects tokens for unknown users", func() {
			access, _ := tokens.GenerateAccessToken(99, "ghost@example.com")
			_, err := service.Authorize(ctx, access)
			gomega.Expect(errors.Is(err, internal.ErrInvalidToken)).To(gomega.BeTrue())
		})

		ginkgo.It("surfaces repository failures", func() {
			access, _ := tokens.GenerateAccessToken(1, "sub@example.com")
			users.err = errors.New("db down")
			_, err := service.Authorize(ctx, access)
			gomega.Expect(err).To(gomega.MatchError("db down"))
		})
	})
})

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	var tokens *JWTTokenGenerator

	ginkgo.BeforeEach(func() {
		tokens = NewJWTTokenGenerator("access-secret", "refresh-secret", time.Minute, time.Hour)
	})

	ginkgo.It("round-trips access claims", func() {
		token, err := tokens.GenerateAccessToken(42, "a@example.com")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		claims, err := tokens.ValidateAccessToken(token)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		id, err := claims.ParsedUserID()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(id).To(gomega.Equal(int64(42)))
		gomega.Expect(claims.Issuer).To(gomega.Equal("expense-approval"))
		gomega.Expect(claims.TokenType).To(gomega.Equal("access"))
	})

	ginkgo.It("does not accept refresh tokens signed with the refresh secret as access tokens", func() {
		token, _ := tokens.GenerateRefreshToken(42, "a@example.com")
		_, err := tokens.ValidateAccessToken(token)
		gomega.Expect(errors.Is(err, internal.ErrInvalidToken)).To(gomega.BeTrue())
	})

	ginkgo.It("reports expired tokens distinctly", func() {
		claims := &Claims{
			UserID:    "42",
			TokenType: "access",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tokens.AccessTokenSecret)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		_, err = tokens.ValidateAccessToken(token)
		gomega.Expect(errors.Is(err, internal.ErrTokenExpired)).To(gomega.BeTrue())
	})

	ginkgo.It("rejects garbage", func() {
		_, err := tokens.ValidateAccessToken("not.a.token")
		gomega.Expect(errors.Is(err, internal.ErrInvalidToken)).To(gomega.BeTrue())
		_, err = tokens.ValidateAccessToken("")
		gomega.Expect(errors.Is(err, internal.ErrInvalidToken)).To(gomega.BeTrue())
	})
})

var _ = ginkgo.Describe("Handler", func() {
	var (
		handler *Handler
		tokens  *JWTTokenGenerator
	)

	ginkgo.BeforeEach(func() {
		users := newFakeUsers(
			&user.User{ID: 5, Email: "l1@example.com", PasswordHash: hashed("secret123"), Role: user.RoleL1Approver, IsActive: true},
		)
		tokens = NewJWTTokenGenerator("access-secret", "refresh-secret", 0, 0)
		handler = NewHandler(transport.NewBaseHandler(discardLogger()), NewService(users, tokens, discardLogger()))
	})

	ginkgo.It("logs in and returns tokens", func() {
		body, _ := json.Marshal(LoginDTO{Email: "l1@example.com", Password: "secret123"})
		rec := httptest.NewRecorder()
		handler.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body)))

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		var pair AuthTokens
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &pair)).To(gomega.Succeed())
		gomega.Expect(pair.AccessToken).NotTo(gomega.BeEmpty())
	})

	ginkgo.It("answers 401 for bad credentials", func() {
		body, _ := json.Marshal(LoginDTO{Email: "l1@example.com", Password: "wrong"})
		rec := httptest.NewRecorder()
		handler.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body)))
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
	})

	ginkgo.Describe("AuthMiddleware", func() {
		var (
			seen   user.Actor
			called bool
			next   http.Handler
		)

		ginkgo.BeforeEach(func() {
			called = false
			next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				seen, _ = ActorFromContext(r.Context())
				id := internal.UserIDFromContext(r.Context())
				gomega.Expect(id).To(gomega.Equal(int64(5)))
				w.WriteHeader(http.StatusNoContent)
			})
		})

		ginkgo.It("puts the actor into the request context", func() {
			access, _ := tokens.GenerateAccessToken(5, "l1@example.com")
			req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
			req.Header.Set("Authorization", "Bearer "+access)
			rec := httptest.NewRecorder()

			handler.AuthMiddleware(next).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
			gomega.Expect(called).To(gomega.BeTrue())
			gomega.Expect(seen.Role).To(gomega.Equal(user.RoleL1Approver))
		})

		ginkgo.It("stops requests without a token", func() {
			rec := httptest.NewRecorder()
			handler.AuthMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expenses", nil))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(called).To(gomega.BeFalse())
		})

		ginkgo.It("stops requests with a refresh token", func() {
			refresh, _ := tokens.GenerateRefreshToken(5, "l1@example.com")
			req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
			req.Header.Set("Authorization", "Bearer "+refresh)
			rec := httptest.NewRecorder()

			handler.AuthMiddleware(next).ServeHTTP(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})
})
