package postgres_test

import (
	"context"
	"testing"
	"time"

	ratelimitDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/ratelimit"
	"github.com/frahmantamala/expense-approval/internal/ratelimit/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRateLimitRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rate Limit Repository Suite")
}

var _ = Describe("Repository", func() {
	var (
		db   *gorm.DB
		repo *postgres.Repository
		ctx  context.Context
		now  time.Time
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&ratelimitDatamodel.Counter{})).To(Succeed())

		repo = postgres.NewRepository(db)
		ctx = context.Background()
		now = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	})

	It("counts hits per key and window", func() {
		for want := 1; want <= 3; want++ {
			n, err := repo.Increment(ctx, "submit:user:1", now, now.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(want))
		}

		n, err := repo.Increment(ctx, "submit:user:1", now.Add(time.Minute), now.Add(2*time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))

		n, err = repo.Increment(ctx, "submit:user:2", now, now.Add(time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("purges expired counters only", func() {
		_, err := repo.Increment(ctx, "a", now, now.Add(time.Minute))
		Expect(err).NotTo(HaveOccurred())
		_, err = repo.Increment(ctx, "b", now.Add(time.Hour), now.Add(time.Hour+time.Minute))
		Expect(err).NotTo(HaveOccurred())

		purged, err := repo.Purge(ctx, now.Add(30*time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(purged).To(Equal(int64(1)))

		var left int64
		Expect(db.Model(&ratelimitDatamodel.Counter{}).Count(&left).Error).To(Succeed())
		Expect(left).To(Equal(int64(1)))
	})
})
