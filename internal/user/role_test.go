package user_test

import (
	"github.com/frahmantamala/expense-approval/internal/user"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Role", func() {
	DescribeTable("approval level",
		func(r user.Role, level int) {
			Expect(r.Level()).To(Equal(level))
		},
		Entry("submitter", user.RoleSubmitter, 0),
		Entry("l1", user.RoleL1Approver, 1),
		Entry("l2", user.RoleL2Approver, 2),
		Entry("l3", user.RoleL3Approver, 3),
		Entry("finance", user.RoleFinance, 0),
	)

	It("parses roles case-insensitively", func() {
		r, ok := user.ParseRole(" Finance ")
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(user.RoleFinance))

		_, ok = user.ParseRole("admin")
		Expect(ok).To(BeFalse())
	})

	It("maps levels back to approver roles", func() {
		r, ok := user.ApproverRole(2)
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(user.RoleL2Approver))

		_, ok = user.ApproverRole(4)
		Expect(ok).To(BeFalse())
	})

	It("grants payment only to finance", func() {
		Expect(user.RolesWith(user.CapProcessPayment)).To(Equal([]user.Role{user.RoleFinance}))
		Expect(user.RoleL3Approver.Can(user.CapProcessPayment)).To(BeFalse())
	})

	It("does not let callers mutate the capability table", func() {
		caps := user.RoleSubmitter.Capabilities()
		caps[0] = user.CapManageUsers
		Expect(user.RoleSubmitter.Can(user.CapManageUsers)).To(BeFalse())
	})

	Describe("Actor.InSite", func() {
		one := int64(1)

		It("binds site-scoped roles to their own site", func() {
			a := user.Actor{ID: 1, Role: user.RoleL1Approver, SiteID: &one}
			Expect(a.InSite(1)).To(BeTrue())
			Expect(a.InSite(2)).To(BeFalse())
		})

		It("lets cross-site roles see every site", func() {
			Expect(user.Actor{ID: 2, Role: user.RoleFinance}.InSite(42)).To(BeTrue())
		})

		It("treats a site-scoped actor without a site as outside all sites", func() {
			Expect(user.Actor{ID: 3, Role: user.RoleSubmitter}.InSite(1)).To(BeFalse())
		})
	})
})
