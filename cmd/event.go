package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/notification"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/frahmantamala/expense-approval/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Inspect the workflow event types and preview the notifications they produce`,
}

var listEventsCmd = &cobra.Command{
	Use:   "types",
	Short: "List the event types notifications subscribe to",
	Run: func(cmd *cobra.Command, args []string) {
		bus := events.NewEventBus(logger.LoggerWrapper())
		notification.NewDispatcher(nil, nil, nil, logger.LoggerWrapper()).Register(bus)
		for _, t := range bus.Types() {
			fmt.Println(t)
		}
	},
}

var previewEventCmd = &cobra.Command{
	Use:   "preview [event-type]",
	Short: "Render the submitter notification for a workflow event",
	Long:  `Render the subject and body a submitter would receive for a transition event, without touching the database`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return previewEvent(args[0])
	},
}

var (
	previewAmount   string
	previewCurrency string
	previewStatus   string
)

// previewLevel is the level the sample transition has just cleared.
// Submissions have not cleared any level yet.
func previewLevel(eventType string) int {
	if eventType == events.EventTypeSubmissionCreated {
		return 0
	}
	return 1
}

func previewEvent(eventType string) error {
	amount, err := decimal.NewFromString(previewAmount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	log := logger.LoggerWrapper()
	ev := events.NewTransitionEvent(eventType, events.Transition{
		ExpenseID:     1,
		ExpenseNumber: "EXP-0001",
		SiteID:        1,
		SubmitterID:   1,
		ActorID:       2,
		Level:         previewLevel(eventType),
		Amount:        amount,
		Currency:      previewCurrency,
		ToStatus:      previewStatus,
	})

	dispatcher := notification.NewDispatcher(previewDirectory{}, notification.NewRenderer(language.English), nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := dispatcher.Messages(ctx, ev)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("no notifications for", eventType)
		return nil
	}
	for _, m := range msgs {
		fmt.Printf("to: %s\nsubject: %s\n\n%s\n\n", m.Recipient, m.Subject, m.Body)
	}
	return nil
}

func init() {
	previewEventCmd.Flags().StringVar(&previewAmount, "amount", "1250.00", "expense amount")
	previewEventCmd.Flags().StringVar(&previewCurrency, "currency", "IDR", "expense currency")
	previewEventCmd.Flags().StringVar(&previewStatus, "to-status", "under_review", "status the expense moved to")

	eventCmd.AddCommand(listEventsCmd)
	eventCmd.AddCommand(previewEventCmd)
	rootCmd.AddCommand(eventCmd)
}

// previewDirectory answers every lookup with placeholder users.
type previewDirectory struct{}

func (previewDirectory) GetByIDs(_ context.Context, ids []int64) ([]*user.User, error) {
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, &user.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id), IsActive: true})
	}
	return out, nil
}

func (previewDirectory) ListWithCapability(ctx context.Context, _ int64, _ user.Capability) ([]*user.User, error) {
	return previewDirectory{}.GetByIDs(ctx, []int64{99})
}
