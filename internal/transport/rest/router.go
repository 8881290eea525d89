package rest

import (
	"net/http"

	"github.com/frahmantamala/expense-approval/internal/auth"
	"github.com/frahmantamala/expense-approval/internal/category"
	"github.com/frahmantamala/expense-approval/internal/dashboard"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/payment"
	"github.com/frahmantamala/expense-approval/internal/ratelimit"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/transport/middleware"
	"github.com/frahmantamala/expense-approval/internal/transport/swagger"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/frahmantamala/expense-approval/internal/workflow"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

const (
	APIBasePath  = "/api/v1"
	openAPIRoute = "/openapi.yml"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *auth.Handler
	User      *user.Handler
	Site      *site.Handler
	Category  *category.Handler
	Expense   *expense.Handler
	Workflow  *workflow.Handler
	Payment   *payment.Handler
	Dashboard *dashboard.Handler
}

type Options struct {
	AllowedOrigins []string
	OpenAPIPath    string
	// RequestValidator is applied to every /api/v1 route when set.
	RequestValidator func(http.Handler) http.Handler
	// RateLimiter guards expense creation and submission when set.
	RateLimiter *ratelimit.Limiter
}

func RegisterAllRoutes(router *chi.Mux, base *transport.BaseHandler, h Handlers, opts Options) {
	actorOf := user.ActorResolver(auth.ActorFromContext)
	require := func(caps ...user.Capability) func(http.Handler) http.Handler {
		return middleware.RequireCapability(base, actorOf, caps...)
	}
	limit := func(scope string) func(http.Handler) http.Handler {
		if opts.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.Middleware(base, opts.RateLimiter, scope, actorOf)
	}

	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.RecoveryMiddleware(base))

	router.Get(openAPIRoute, func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, opts.OpenAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler(openAPIRoute))

	router.Route(APIBasePath, func(r chi.Router) {
		if opts.RequestValidator != nil {
			r.Use(opts.RequestValidator)
		}

		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)

		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", h.Auth.Login)
			ar.Post("/refresh", h.Auth.RefreshToken)
		})

		r.Get("/categories", h.Category.GetCategories)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/auth/me", h.Auth.Me)
			pr.Get("/users/me", h.User.GetCurrentUser)

			pr.Route("/users", func(ur chi.Router) {
				ur.Use(require(user.CapManageUsers))
				ur.Get("/", h.User.ListUsers)
				ur.Post("/", h.User.CreateUser)
				ur.Put("/{id}", h.User.UpdateUser)
			})

			pr.Route("/sites", func(sr chi.Router) {
				sr.Get("/", h.Site.ListSites)
				sr.Get("/{id}", h.Site.GetSite)
				sr.With(require(user.CapManageSites)).Post("/", h.Site.CreateSite)
				sr.With(require(user.CapManageSites, user.CapManageBudgets)).Put("/{id}", h.Site.UpdateSite)

				sr.Group(func(rr chi.Router) {
					rr.Use(require(user.CapViewReports))
					rr.Get("/{id}/summary", h.Dashboard.GetSiteSummary)
					rr.Get("/{id}/category-spend", h.Dashboard.GetCategorySpend)
				})
			})

			pr.Route("/expenses", func(er chi.Router) {
				er.Get("/", h.Expense.ListExpenses)
				er.With(require(user.CapCreateExpense), limit("expense_create")).Post("/", h.Expense.CreateExpense)
				er.Get("/{id}", h.Expense.GetExpense)
				er.Put("/{id}", h.Expense.UpdateExpense)
				er.Delete("/{id}", h.Expense.DeleteExpense)

				er.With(require(user.CapCreateExpense), limit("expense_submit")).Post("/{id}/submit", h.Workflow.SubmitExpense)
				er.Post("/{id}/cancel", h.Workflow.CancelExpense)
				er.Get("/{id}/history", h.Workflow.GetHistory)
				er.Get("/{id}/pending-approvers", h.Workflow.GetPendingApprovers)

				er.Group(func(ar chi.Router) {
					ar.Use(require(user.CapApproveExpense))
					ar.Post("/{id}/approve", h.Workflow.ApproveExpense)
					ar.Post("/{id}/reject", h.Workflow.RejectExpense)
				})

				er.With(require(user.CapProcessPayment)).Post("/{id}/payment", h.Workflow.ProcessPayment)
				er.Get("/{id}/payment", h.Payment.GetExpensePayment)
			})

			pr.Route("/approvals", func(ar chi.Router) {
				ar.Use(require(user.CapApproveExpense))
				ar.Get("/inbox", h.Workflow.GetInbox)
				ar.Get("/inbox/count", h.Dashboard.GetInboxCount)
			})

			pr.With(require(user.CapProcessPayment, user.CapViewAllExpense)).Get("/payments", h.Payment.ListPayments)
		})
	})
}
