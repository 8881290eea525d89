package user_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/user"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

func TestUser(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Suite")
}

type mockRepository struct {
	users  map[int64]*user.User
	nextID int64
	err    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: map[int64]*user.User{}, nextID: 1}
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*user.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepository) GetByIDs(_ context.Context, ids []int64) ([]*user.User, error) {
	var out []*user.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepository) GetByEmail(_ context.Context, email string) (*user.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *mockRepository) List(_ context.Context, filter user.ListFilter) ([]*user.User, error) {
	var out []*user.User
	for id := int64(1); id < m.nextID; id++ {
		u, ok := m.users[id]
		if !ok {
			continue
		}
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		if len(filter.Roles) > 0 {
			match := false
			for _, r := range filter.Roles {
				if u.Role == r {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, u *user.User) error {
	if m.err != nil {
		return m.err
	}
	u.ID = m.nextID
	m.nextID++
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepository) Update(_ context.Context, u *user.User) error {
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

type stubSites struct {
	known map[int64]bool
}

func (s stubSites) Exists(_ context.Context, id int64) (bool, error) {
	return s.known[id], nil
}

func siteID(id int64) *int64 { return &id }

var _ = Describe("Service", func() {
	var (
		repo  *mockRepository
		svc   *user.Service
		ctx   context.Context
		admin user.Actor
	)

	BeforeEach(func() {
		repo = newMockRepository()
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = user.NewService(repo, stubSites{known: map[int64]bool{1: true, 2: true}}, bcrypt.MinCost, lg)
		ctx = context.Background()
		admin = user.Actor{ID: 99, Role: user.RoleL3Approver}
	})

	Describe("Create", func() {
		It("hashes the password and stores a site-scoped approver", func() {
			u, err := svc.Create(ctx, admin, user.CreateUserDTO{
				Email:    "ana@example.com",
				Name:     "Ana",
				Password: "s3cretpass",
				Role:     "L1_APPROVER",
				SiteID:   siteID(1),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(Equal(int64(1)))
			Expect(u.Role).To(Equal(user.RoleL1Approver))
			Expect(u.IsActive).To(BeTrue())
			Expect(bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cretpass"))).To(Succeed())
		})

		It("drops the site for cross-site roles", func() {
			u, err := svc.Create(ctx, admin, user.CreateUserDTO{
				Email: "fin@example.com", Name: "Fin", Password: "s3cretpass", Role: "finance", SiteID: siteID(1),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.SiteID).To(BeNil())
		})

		It("requires a site for site-scoped roles", func() {
			_, err := svc.Create(ctx, admin, user.CreateUserDTO{
				Email: "s@example.com", Name: "S", Password: "s3cretpass", Role: "submitter",
			})
			Expect(internal.IsValidation(err)).To(BeTrue())
		})

		It("rejects unknown sites", func() {
			_, err := svc.Create(ctx, admin, user.CreateUserDTO{
				Email: "s@example.com", Name: "S", Password: "s3cretpass", Role: "submitter", SiteID: siteID(7),
			})
			Expect(errors.Is(err, internal.ErrSiteNotFound)).To(BeTrue())
		})

		It("rejects an unknown role", func() {
			_, err := svc.Create(ctx, admin, user.CreateUserDTO{
				Email: "s@example.com", Name: "S", Password: "s3cretpass", Role: "owner", SiteID: siteID(1),
			})
			Expect(internal.IsValidation(err)).To(BeTrue())
		})

		It("rejects a duplicate email", func() {
			dto := user.CreateUserDTO{Email: "s@example.com", Name: "S", Password: "s3cretpass", Role: "submitter", SiteID: siteID(1)}
			_, err := svc.Create(ctx, admin, dto)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Create(ctx, admin, dto)
			Expect(internal.IsDuplicate(err)).To(BeTrue())
		})

		It("refuses actors without manage_users", func() {
			_, err := svc.Create(ctx, user.Actor{ID: 5, Role: user.RoleL2Approver, SiteID: siteID(1)}, user.CreateUserDTO{})
			Expect(errors.Is(err, internal.ErrNotAuthorized)).To(BeTrue())
		})
	})

	Describe("Update", func() {
		var created *user.User

		BeforeEach(func() {
			var err error
			created, err = svc.Create(ctx, admin, user.CreateUserDTO{
				Email: "s@example.com", Name: "S", Password: "s3cretpass", Role: "submitter", SiteID: siteID(1),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("promotes a user and deactivates them", func() {
			role := "l2_approver"
			inactive := false
			u, err := svc.Update(ctx, admin, created.ID, user.UpdateUserDTO{Role: &role, IsActive: &inactive})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(user.RoleL2Approver))
			Expect(u.IsActive).To(BeFalse())
			Expect(*u.SiteID).To(Equal(int64(1)))
		})

		It("returns not found for unknown users", func() {
			_, err := svc.Update(ctx, admin, 404, user.UpdateUserDTO{})
			Expect(internal.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("ListWithCapability", func() {
		It("returns in-site approvers and cross-site approvers only", func() {
			mk := func(email, role string, site *int64) {
				_, err := svc.Create(ctx, admin, user.CreateUserDTO{Email: email, Name: email, Password: "s3cretpass", Role: role, SiteID: site})
				Expect(err).NotTo(HaveOccurred())
			}
			mk("a@x.io", "l1_approver", siteID(1))
			mk("b@x.io", "l1_approver", siteID(2))
			mk("c@x.io", "l3_approver", nil)
			mk("d@x.io", "submitter", siteID(1))

			users, err := svc.ListWithCapability(ctx, 1, user.CapApproveExpense)
			Expect(err).NotTo(HaveOccurred())

			emails := []string{}
			for _, u := range users {
				emails = append(emails, u.Email)
			}
			Expect(emails).To(ConsistOf("a@x.io", "c@x.io"))
		})
	})
})
