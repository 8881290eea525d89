package dashboard_test

import (
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
	"github.com/frahmantamala/expense-approval/internal/dashboard"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestDashboard(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dashboard Suite")
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fakeRepo struct {
	row        *dashboard.SiteBudgetRow
	counts     []dashboard.StatusCount
	spend      []dashboard.CategorySpend
	inbox      int
	err        error
	from, to   time.Time
	inboxCalls int
}

func (f *fakeRepo) SiteBudget(_ context.Context, siteID int64) (*dashboard.SiteBudgetRow, error) {
	if f.row == nil || f.row.ID != siteID {
		return nil, internal.ErrSiteNotFound
	}
	return f.row, nil
}

func (f *fakeRepo) StatusCounts(context.Context, int64) ([]dashboard.StatusCount, error) {
	return f.counts, f.err
}

func (f *fakeRepo) CategorySpend(_ context.Context, _ int64, from, to time.Time) ([]dashboard.CategorySpend, error) {
	f.from, f.to = from, to
	return f.spend, f.err
}

func (f *fakeRepo) InboxCount(context.Context, int64) (int, error) {
	f.inboxCalls++
	return f.inbox, f.err
}

var _ = Describe("Dashboard", func() {
	var (
		repo    *fakeRepo
		svc     *dashboard.Service
		ctx     context.Context
		site    int64
		other   int64
		l2      user.Actor
		finance user.Actor
	)

	BeforeEach(func() {
		site, other = 1, 2
		repo = &fakeRepo{
			row: &dashboard.SiteBudgetRow{
				ID: 1, Code: "JKT", Name: "Jakarta",
				MonthlyBudget: d("1000"), MonthlySpend: d("850"),
				YearlyBudget: d("12000"), YearlySpend: d("3000"),
				AlertThreshold: 80, ExpenseCount: 9, StatsMonth: "2026-10", StatsYear: 2026,
			},
			counts: []dashboard.StatusCount{{Status: "approved", Count: 4}, {Status: "submitted", Count: 2}},
		}
		svc = dashboard.NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
		ctx = context.Background()
		l2 = user.Actor{ID: 21, Role: user.RoleL2Approver, SiteID: &site}
		finance = user.Actor{ID: 41, Role: user.RoleFinance}
	})

	Describe("SiteSummary", func() {
		It("computes utilisation and the alert flag", func() {
			s, err := svc.SiteSummary(ctx, l2, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.MonthlyUtilization.Equal(d("85"))).To(BeTrue())
			Expect(s.YearlyUtilization.Equal(d("25"))).To(BeTrue())
			Expect(s.AboveAlert).To(BeTrue())
			Expect(s.StatusCounts).To(Equal(map[string]int{"approved": 4, "submitted": 2}))
		})

		It("reports zero utilisation without a budget", func() {
			repo.row.MonthlyBudget = decimal.Zero
			s, err := svc.SiteSummary(ctx, finance, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.MonthlyUtilization.IsZero()).To(BeTrue())
			Expect(s.AboveAlert).To(BeFalse())
		})

		It("limits site approvers to their own site", func() {
			_, err := svc.SiteSummary(ctx, user.Actor{ID: 22, Role: user.RoleL2Approver, SiteID: &other}, 1)
			Expect(err).To(MatchError(internal.ErrNotAuthorized))
		})

		It("needs the reports capability", func() {
			_, err := svc.SiteSummary(ctx, user.Actor{ID: 11, Role: user.RoleL1Approver, SiteID: &site}, 1)
			Expect(err).To(MatchError(internal.ErrNotAuthorized))
		})

		It("passes not found through", func() {
			_, err := svc.SiteSummary(ctx, finance, 99)
			Expect(err).To(MatchError(internal.ErrSiteNotFound))
		})
	})

	It("queries category spend for the current calendar month", func() {
		repo.spend = []dashboard.CategorySpend{{Category: "Food", Amount: d("150"), Entries: 2}}
		spend, err := svc.CategorySpend(ctx, finance, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(spend).To(HaveLen(1))
		Expect(repo.from.Day()).To(Equal(1))
		Expect(repo.to).To(Equal(repo.from.AddDate(0, 1, 0)))
	})

	It("counts the inbox for approvers only", func() {
		repo.inbox = 3
		n, err := svc.InboxCount(ctx, l2)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))

		n, err = svc.InboxCount(ctx, finance)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
		Expect(repo.inboxCalls).To(Equal(1))
	})

	Describe("Handler", func() {
		var (
			router *chi.Mux
			actor  *user.Actor
		)

		BeforeEach(func() {
			actor = &finance
			resolver := func(context.Context) (user.Actor, bool) {
				if actor == nil {
					return user.Actor{}, false
				}
				return *actor, true
			}
			h := dashboard.NewHandler(transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil))), svc, resolver)
			router = chi.NewRouter()
			router.Get("/dashboard/sites/{id}", h.GetSiteSummary)
			router.Get("/dashboard/sites/{id}/categories", h.GetCategorySpend)
			router.Get("/dashboard/inbox", h.GetInboxCount)
		})

		get := func(path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			return rec
		}

		It("renders the site summary", func() {
			rec := get("/dashboard/sites/1")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body map[string]interface{}
			Expect(json.NewDecoder(rec.Body).Decode(&body)).To(Succeed())
			Expect(body["code"]).To(Equal("JKT"))
			Expect(body["monthly_utilization"]).To(Equal("85"))
		})

		It("rejects a malformed site id", func() {
			Expect(get("/dashboard/sites/abc").Code).To(Equal(http.StatusBadRequest))
		})

		It("requires an authenticated actor", func() {
			actor = nil
			Expect(get("/dashboard/inbox").Code).To(Equal(http.StatusUnauthorized))
		})

		It("maps repository failures to 500", func() {
			repo.err = errors.New("db down")
			Expect(get("/dashboard/sites/1/categories").Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
