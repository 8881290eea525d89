package site_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/frahmantamala/expense-approval/internal/user"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockRepository struct {
	sites      map[int64]*site.Site
	nextID     int64
	resetCalls []site.Period
}

func newMockRepository() *mockRepository {
	return &mockRepository{sites: map[int64]*site.Site{}, nextID: 1}
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*site.Site, error) {
	s, ok := m.sites[id]
	if !ok {
		return nil, site.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepository) GetByCode(_ context.Context, code string) (*site.Site, error) {
	for _, s := range m.sites {
		if s.Code == code {
			return s, nil
		}
	}
	return nil, site.ErrNotFound
}

func (m *mockRepository) List(_ context.Context, _ bool) ([]*site.Site, error) {
	var out []*site.Site
	for id := int64(1); id < m.nextID; id++ {
		if s, ok := m.sites[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, s *site.Site) error {
	s.ID = m.nextID
	m.nextID++
	cp := *s
	m.sites[s.ID] = &cp
	return nil
}

func (m *mockRepository) Update(_ context.Context, s *site.Site) error {
	cp := *s
	m.sites[s.ID] = &cp
	return nil
}

func (m *mockRepository) ResetStats(_ context.Context, p site.Period, _ time.Time) (int64, error) {
	m.resetCalls = append(m.resetCalls, p)
	return int64(len(m.sites)), nil
}

var _ = Describe("Service", func() {
	var (
		repo  *mockRepository
		svc   *site.Service
		ctx   context.Context
		admin user.Actor
		dto   site.CreateSiteDTO
	)

	BeforeEach(func() {
		repo = newMockRepository()
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = site.NewService(repo, 30, lg)
		ctx = context.Background()
		admin = user.Actor{ID: 1, Role: user.RoleL3Approver}
		dto = site.CreateSiteDTO{
			Code:       " jkt ",
			Name:       "Jakarta",
			Budget:     site.Budget{Monthly: d(10000), Yearly: d(120000)},
			Thresholds: ladder(500, 1000, 5000, 10000),
		}
	})

	Describe("Create", func() {
		It("normalises the code and applies defaults", func() {
			s, err := svc.Create(ctx, admin, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Code).To(Equal("JKT"))
			Expect(s.Budget.AlertThreshold).To(Equal(80))
			Expect(s.Policy.DuplicateWindowDays).To(Equal(30))
			Expect(s.Stats.Month).To(Equal(site.StatsMonth(time.Now().UTC())))
			Expect(s.IsActive).To(BeTrue())
		})

		It("fails with a budget config error for a broken ladder", func() {
			dto.Thresholds = ladder(1000, 500, 5000, 10000)
			_, err := svc.Create(ctx, admin, dto)
			Expect(internal.IsBudgetConfig(err)).To(BeTrue())
			Expect(repo.sites).To(BeEmpty())
		})

		It("rejects duplicate codes", func() {
			_, err := svc.Create(ctx, admin, dto)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Create(ctx, admin, dto)
			Expect(internal.IsDuplicate(err)).To(BeTrue())
		})

		It("requires manage_sites", func() {
			_, err := svc.Create(ctx, user.Actor{ID: 2, Role: user.RoleFinance}, dto)
			Expect(internal.IsNotAuthorized(err)).To(BeTrue())
		})
	})

	Describe("Update", func() {
		var created *site.Site

		BeforeEach(func() {
			var err error
			created, err = svc.Create(ctx, admin, dto)
			Expect(err).NotTo(HaveOccurred())
		})

		It("lets finance adjust budgets but not the policy", func() {
			finance := user.Actor{ID: 3, Role: user.RoleFinance}
			budget := site.Budget{Monthly: d(20000), Yearly: d(240000), AlertThreshold: 90}

			s, err := svc.Update(ctx, finance, created.ID, site.UpdateSiteDTO{Budget: &budget})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Budget.Monthly.Equal(d(20000))).To(BeTrue())

			_, err = svc.Update(ctx, finance, created.ID, site.UpdateSiteDTO{Policy: &site.Policy{}})
			Expect(internal.IsNotAuthorized(err)).To(BeTrue())
		})

		It("refuses an update that breaks the ladder", func() {
			bad := ladder(500, 1000, 900, 10000)
			_, err := svc.Update(ctx, admin, created.ID, site.UpdateSiteDTO{Thresholds: &bad})
			Expect(internal.IsBudgetConfig(err)).To(BeTrue())

			stored, _ := repo.GetByID(ctx, created.ID)
			Expect(stored.Thresholds.L2.Equal(d(5000))).To(BeTrue())
		})
	})

	Describe("Get and List", func() {
		It("scopes site-bound actors to their own site", func() {
			a, _ := svc.Create(ctx, admin, dto)
			other := dto
			other.Code = "SBY"
			b, _ := svc.Create(ctx, admin, other)

			approver := user.Actor{ID: 9, Role: user.RoleL1Approver, SiteID: &a.ID}
			sites, err := svc.List(ctx, approver)
			Expect(err).NotTo(HaveOccurred())
			Expect(sites).To(HaveLen(1))
			Expect(sites[0].Code).To(Equal("JKT"))

			_, err = svc.Get(ctx, approver, b.ID)
			Expect(internal.IsNotAuthorized(err)).To(BeTrue())

			all, _ := svc.List(ctx, admin)
			Expect(all).To(HaveLen(2))
		})

		It("reports existence without erroring on missing sites", func() {
			ok, err := svc.Exists(ctx, 77)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ResetStats", func() {
		It("rejects unknown periods", func() {
			_, err := svc.ResetStats(ctx, site.Period("weekly"), time.Now())
			Expect(internal.IsValidation(err)).To(BeTrue())
			Expect(repo.resetCalls).To(BeEmpty())
		})

		It("delegates known periods", func() {
			_, err := svc.ResetStats(ctx, site.PeriodMonthly, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.resetCalls).To(Equal([]site.Period{site.PeriodMonthly}))
		})
	})
})
