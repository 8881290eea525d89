package site_test

import (
	"testing"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/site"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestSite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Site Suite")
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ladder(auto, l1, l2, l3 int64) site.Thresholds {
	return site.Thresholds{AutoApproval: d(auto), L1: d(l1), L2: d(l2), L3: d(l3)}
}

var _ = Describe("Thresholds", func() {
	DescribeTable("ladder ordering",
		func(t site.Thresholds, valid bool) {
			err := t.Validate()
			if valid {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(internal.IsBudgetConfig(err)).To(BeTrue())
		},
		Entry("strictly increasing", ladder(500, 1000, 5000, 10000), true),
		Entry("zero auto limit", ladder(0, 1, 2, 3), true),
		Entry("auto equals l1", ladder(1000, 1000, 5000, 10000), false),
		Entry("l2 below l1", ladder(500, 5000, 1000, 10000), false),
		Entry("l3 equals l2", ladder(500, 1000, 5000, 5000), false),
		Entry("negative auto", ladder(-1, 1000, 5000, 10000), false),
	)
})

var _ = Describe("Site", func() {
	var s *site.Site

	BeforeEach(func() {
		s = &site.Site{
			Code:       "JKT",
			Name:       "Jakarta",
			Thresholds: ladder(500, 1000, 5000, 10000),
			Budget:     site.Budget{Monthly: d(10000), Yearly: d(120000), AlertThreshold: 80},
		}
	})

	It("validates a well formed site", func() {
		Expect(s.Validate()).To(Succeed())
	})

	It("rejects a broken ladder with a budget config error", func() {
		s.Thresholds.L2 = d(100)
		Expect(s.Validate()).To(MatchError(internal.ErrBudgetConfig))
	})

	It("rejects an alert threshold outside 1..100", func() {
		s.Budget.AlertThreshold = 120
		Expect(internal.IsBudgetConfig(s.Validate())).To(BeTrue())
	})

	It("requires both coordinates or neither", func() {
		lat := -6.2
		s.Latitude = &lat
		Expect(internal.IsValidation(s.Validate())).To(BeTrue())
	})

	It("reports monthly utilisation as a percentage", func() {
		s.Stats.MonthlySpend = d(8000)
		Expect(s.MonthlyUtilization().Equal(d(80))).To(BeTrue())

		s.Budget.Monthly = decimal.Zero
		Expect(s.MonthlyUtilization().IsZero()).To(BeTrue())
	})

	It("looks up policy maps case-insensitively", func() {
		s.Policy.CategoryLimits = map[string]decimal.Decimal{"Travel": d(300)}
		s.Policy.WeekendDisallowed = []string{"Food"}

		v, ok := s.Policy.CategoryLimit("travel")
		Expect(ok).To(BeTrue())
		Expect(v.Equal(d(300))).To(BeTrue())
		Expect(s.Policy.WeekendDisallowedFor("FOOD")).To(BeTrue())
		Expect(s.Policy.WeekendDisallowedFor("Fuel")).To(BeFalse())
	})
})
