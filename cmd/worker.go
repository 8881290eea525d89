package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start long-running maintenance workers that keep site stats and rate-limit counters tidy.`,
}

var maintenanceWorkerCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Periodically reset site stats and purge rate-limit counters",
	Run: func(cmd *cobra.Command, args []string) {
		startMaintenanceWorker()
	},
}

var maintenanceInterval time.Duration

func startMaintenanceWorker() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()
	log := deps.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("maintenance worker started", "interval", maintenanceInterval)

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	runMaintenance(ctx, deps)
	for {
		select {
		case <-ctx.Done():
			log.Info("maintenance worker shutting down")
			return
		case <-ticker.C:
			runMaintenance(ctx, deps)
		}
	}
}

// runMaintenance logs failures and carries on; the next tick retries.
func runMaintenance(ctx context.Context, deps *Dependencies) {
	log := deps.Logger
	now := time.Now()

	for _, period := range []site.Period{site.PeriodMonthly, site.PeriodYearly} {
		if _, err := deps.Sites.ResetStats(ctx, period, now); err != nil {
			log.Error("stats reset failed", "period", period, "error", err)
		}
	}

	if deps.Limiter == nil {
		return
	}
	n, err := deps.Limiter.Purge(ctx)
	if err != nil {
		log.Error("rate limit purge failed", "error", err)
		return
	}
	log.Info("rate limit counters purged", "rows", n)
}

func init() {
	maintenanceWorkerCmd.Flags().DurationVar(&maintenanceInterval, "interval", 15*time.Minute, "time between maintenance runs")

	workerCmd.AddCommand(maintenanceWorkerCmd)
	rootCmd.AddCommand(workerCmd)
}
