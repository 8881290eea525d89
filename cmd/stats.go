package cmd

import (
	"fmt"
	"time"

	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Site statistics maintenance",
}

var statsPeriod string

var statsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset site running totals for a new period",
	Long:  `Zero monthly or yearly spend on every site whose stats belong to an earlier period. Safe to run more than once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := initializeDependencies()
		if err != nil {
			return fmt.Errorf("failed to init dependencies: %w", err)
		}
		defer deps.Close()

		n, err := deps.Sites.ResetStats(cmd.Context(), site.Period(statsPeriod), time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("reset %s stats on %d site(s)\n", statsPeriod, n)
		return nil
	},
}

func init() {
	statsResetCmd.Flags().StringVarP(&statsPeriod, "period", "p", string(site.PeriodMonthly), "monthly or yearly")

	statsCmd.AddCommand(statsResetCmd)
	rootCmd.AddCommand(statsCmd)
}
