package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	clearData    bool
	seedPassword string
)

// seedActor stands in for an operator when the CLI writes through the
// services.
var seedActor = user.Actor{Role: user.RoleL3Approver}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the category catalogue, a demo site and one user per role for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		deps, err := initializeDependencies()
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		if err := seed(context.Background(), deps); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	},
}

func seed(ctx context.Context, deps *Dependencies) error {
	if clearData {
		if err := clearTables(deps); err != nil {
			return err
		}
		fmt.Println("Cleared existing data")
	}

	created, err := deps.Category.SyncCatalogue()
	if err != nil {
		return fmt.Errorf("sync categories: %w", err)
	}
	fmt.Println("Seeded categories:", created)

	hq, err := seedSite(ctx, deps.Sites)
	if err != nil {
		return err
	}

	users := []user.CreateUserDTO{
		{Email: "submitter@mail.com", Name: "Sari Submitter", Role: string(user.RoleSubmitter), SiteID: &hq.ID, Department: "Operations"},
		{Email: "l1@mail.com", Name: "Lukas L1", Role: string(user.RoleL1Approver), SiteID: &hq.ID},
		{Email: "l2@mail.com", Name: "Lina L2", Role: string(user.RoleL2Approver), SiteID: &hq.ID},
		{Email: "l3@mail.com", Name: "Lars L3", Role: string(user.RoleL3Approver)},
		{Email: "finance@mail.com", Name: "Fadhil Finance", Role: string(user.RoleFinance)},
	}
	for _, dto := range users {
		dto.Password = seedPassword
		u, err := deps.Users.Create(ctx, seedActor, dto)
		if internal.IsDuplicate(err) {
			fmt.Println("user already exists:", dto.Email)
			continue
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", dto.Email, err)
		}
		fmt.Println("Seeded user:", u.Email, u.Role)
	}

	return nil
}

func seedSite(ctx context.Context, sites *site.Service) (*site.Site, error) {
	dto := site.CreateSiteDTO{
		Code: "HQ",
		Name: "Head Office",
		City: "Jakarta",
		Budget: site.Budget{
			Monthly:        decimal.NewFromInt(50000),
			Yearly:         decimal.NewFromInt(600000),
			AlertThreshold: 80,
		},
		Thresholds: site.Thresholds{
			AutoApproval: decimal.NewFromInt(500),
			L1:           decimal.NewFromInt(1000),
			L2:           decimal.NewFromInt(5000),
			L3:           decimal.NewFromInt(10000),
		},
	}

	st, err := sites.Create(ctx, seedActor, dto)
	if err == nil {
		fmt.Println("Seeded site:", st.Code)
		return st, nil
	}
	if !internal.IsDuplicate(err) {
		return nil, fmt.Errorf("seed site: %w", err)
	}

	all, err := sites.List(ctx, seedActor)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	for _, s := range all {
		if s.Code == dto.Code {
			fmt.Println("site already exists:", s.Code)
			return s, nil
		}
	}
	return nil, fmt.Errorf("site %s reported as duplicate but not listed", dto.Code)
}

func clearTables(deps *Dependencies) error {
	return deps.Gorm.Exec(`TRUNCATE TABLE payments, approval_history, pending_approvers, expenses,
number_sequences, site_spend_entries, users, sites, expense_categories, rate_limit_counters RESTART IDENTITY CASCADE`).Error
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")
	seedCmd.Flags().StringVar(&seedPassword, "password", "password", "Password given to every seeded user")
}
