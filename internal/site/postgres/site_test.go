package postgres_test

import (
	"context"
	"testing"
	"time"

	siteDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/site"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/frahmantamala/expense-approval/internal/site/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSiteRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Site Repository Suite")
}

var _ = Describe("Repository", func() {
	var (
		db   *gorm.DB
		repo *postgres.Repository
		ctx  context.Context
		s    *site.Site
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&siteDatamodel.Site{})).To(Succeed())

		repo = postgres.NewRepository(db)
		ctx = context.Background()

		cash := decimal.NewFromInt(50)
		s = &site.Site{
			Code: "JKT",
			Name: "Jakarta",
			Budget: site.Budget{
				Monthly:        decimal.NewFromInt(10000),
				Yearly:         decimal.NewFromInt(120000),
				AlertThreshold: 80,
			},
			Thresholds: site.Thresholds{
				AutoApproval: decimal.NewFromInt(500),
				L1:           decimal.NewFromInt(1000),
				L2:           decimal.NewFromInt(5000),
				L3:           decimal.NewFromInt(10000),
			},
			Policy:   site.Policy{DuplicateWindowDays: 30, CashMax: &cash, WeekendDisallowed: []string{"Food"}},
			Stats:    site.Stats{Month: "2026-09", Year: 2026},
			IsActive: true,
		}
		Expect(repo.Create(ctx, s)).To(Succeed())
	})

	It("round-trips thresholds and json policy", func() {
		got, err := repo.GetByID(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Thresholds.L2.Equal(decimal.NewFromInt(5000))).To(BeTrue())
		Expect(got.Policy.CashMax).NotTo(BeNil())
		Expect(got.Policy.CashMax.Equal(decimal.NewFromInt(50))).To(BeTrue())
		Expect(got.Policy.WeekendDisallowed).To(Equal([]string{"Food"}))

		byCode, err := repo.GetByCode(ctx, "JKT")
		Expect(err).NotTo(HaveOccurred())
		Expect(byCode.ID).To(Equal(s.ID))
	})

	It("returns ErrNotFound for unknown ids", func() {
		_, err := repo.GetByID(ctx, 404)
		Expect(err).To(MatchError(site.ErrNotFound))
	})

	It("never overwrites running totals on config update", func() {
		Expect(db.Model(&siteDatamodel.Site{}).Where("id = ?", s.ID).
			Update("monthly_spend", decimal.NewFromInt(700)).Error).To(Succeed())

		s.Name = "Jakarta HQ"
		s.Stats.MonthlySpend = decimal.Zero
		Expect(repo.Update(ctx, s)).To(Succeed())

		got, err := repo.GetByID(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name).To(Equal("Jakarta HQ"))
		Expect(got.Stats.MonthlySpend.Equal(decimal.NewFromInt(700))).To(BeTrue())
	})

	It("resets monthly stats once per month", func() {
		Expect(db.Model(&siteDatamodel.Site{}).Where("id = ?", s.ID).
			Updates(map[string]interface{}{"monthly_spend": decimal.NewFromInt(700), "yearly_spend": decimal.NewFromInt(900)}).Error).To(Succeed())

		now := time.Date(2026, 10, 1, 0, 5, 0, 0, time.UTC)
		n, err := repo.ResetStats(ctx, site.PeriodMonthly, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		got, _ := repo.GetByID(ctx, s.ID)
		Expect(got.Stats.MonthlySpend.IsZero()).To(BeTrue())
		Expect(got.Stats.YearlySpend.Equal(decimal.NewFromInt(900))).To(BeTrue())
		Expect(got.Stats.Month).To(Equal("2026-10"))

		n, err = repo.ResetStats(ctx, site.PeriodMonthly, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("resets yearly totals when the year rolls", func() {
		n, err := repo.ResetStats(ctx, site.PeriodYearly, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		got, _ := repo.GetByID(ctx, s.ID)
		Expect(got.Stats.Year).To(Equal(2027))
		Expect(got.Stats.Month).To(Equal("2027-01"))
	})
})
