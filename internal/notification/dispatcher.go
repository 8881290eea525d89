package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type Enqueuer interface {
	Enqueue(msg Message) error
}

// Dispatcher turns workflow and budget events into per-recipient messages.
// It never reports delivery failures back to the publisher.
type Dispatcher struct {
	directory Directory
	renderer  *Renderer
	queue     Enqueuer
	logger    *slog.Logger
}

func NewDispatcher(directory Directory, renderer *Renderer, queue Enqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		renderer:  renderer,
		queue:     queue,
		logger:    logger,
	}
}

func (d *Dispatcher) Register(bus Subscriber) {
	for _, t := range events.TransitionTypes {
		bus.Subscribe(t, d.Handle)
	}
	bus.Subscribe(events.EventTypeBudgetAlert, d.Handle)
}

func (d *Dispatcher) Handle(ctx context.Context, ev events.Event) error {
	msgs, err := d.Messages(ctx, ev)
	if err != nil {
		d.logger.Error("failed to resolve notification recipients",
			"event_type", ev.EventType(),
			"event_id", ev.EventID(),
			"error", err)
		return nil
	}

	for _, msg := range msgs {
		if err := d.queue.Enqueue(msg); err != nil {
			d.logger.Warn("notification dropped",
				"event_type", msg.EventType,
				"recipient_id", msg.RecipientID,
				"error", err)
		}
	}
	return nil
}

// Messages resolves recipients for ev and renders one message per recipient.
func (d *Dispatcher) Messages(ctx context.Context, ev events.Event) ([]Message, error) {
	switch e := ev.(type) {
	case *events.TransitionEvent:
		return d.transitionMessages(ctx, e)
	case *events.BudgetAlertEvent:
		return d.budgetAlertMessages(ctx, e)
	default:
		d.logger.Debug("no notification template for event", "event_type", ev.EventType())
		return nil, nil
	}
}

func (d *Dispatcher) transitionMessages(ctx context.Context, e *events.TransitionEvent) ([]Message, error) {
	t := e.Transition
	var out []Message

	if len(t.NextApproverIDs) > 0 {
		approvers, err := d.directory.GetByIDs(ctx, t.NextApproverIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load next approvers: %w", err)
		}
		level := t.Level + 1
		subject := d.renderer.Sprintf("Expense %s awaits level %d approval", t.ExpenseNumber, level)
		body := d.renderer.Sprintf("Expense %s for %s needs your level %d approval.",
			t.ExpenseNumber, d.renderer.Amount(t.Amount, t.Currency), level)
		for _, u := range approvers {
			if !u.IsActive {
				continue
			}
			out = append(out, d.message(e, u, t.ExpenseID, t.SiteID, subject, body))
		}
	}

	if subject, body, ok := d.submitterText(e.EventType(), t); ok {
		submitters, err := d.directory.GetByIDs(ctx, []int64{t.SubmitterID})
		if err != nil {
			return nil, fmt.Errorf("failed to load submitter: %w", err)
		}
		for _, u := range submitters {
			out = append(out, d.message(e, u, t.ExpenseID, t.SiteID, subject, body))
		}
	}
	return out, nil
}

// submitterText renders the status update for the submitter. Submitters are
// not told about their own actions, except for the submission receipt.
func (d *Dispatcher) submitterText(eventType string, t events.Transition) (string, string, bool) {
	if t.ActorID == t.SubmitterID && eventType != events.EventTypeSubmissionCreated {
		return "", "", false
	}
	amount := d.renderer.Amount(t.Amount, t.Currency)

	switch eventType {
	case events.EventTypeSubmissionCreated:
		if t.ToStatus == "approved" {
			return d.renderer.Sprintf("Expense %s was auto-approved", t.ExpenseNumber),
				d.renderer.Sprintf("Expense %s for %s was approved without review.", t.ExpenseNumber, amount), true
		}
		return d.renderer.Sprintf("Expense %s was submitted", t.ExpenseNumber),
			d.renderer.Sprintf("Expense %s for %s is now %s.", t.ExpenseNumber, amount, t.ToStatus), true
	case events.EventTypeLevelApproved:
		if t.ToStatus == "approved" {
			return d.renderer.Sprintf("Expense %s is approved", t.ExpenseNumber),
				d.renderer.Sprintf("Expense %s for %s is fully approved and ready for payment.", t.ExpenseNumber, amount), true
		}
		return d.renderer.Sprintf("Expense %s passed level %d", t.ExpenseNumber, t.Level),
			d.renderer.Sprintf("Expense %s for %s was approved at level %d.", t.ExpenseNumber, amount, t.Level), true
	case events.EventTypeRejected:
		return d.renderer.Sprintf("Expense %s was rejected", t.ExpenseNumber),
			d.renderer.Sprintf("Expense %s for %s was rejected at level %d: %s", t.ExpenseNumber, amount, t.Level, t.Comments), true
	case events.EventTypePaymentProcessed:
		return d.renderer.Sprintf("Expense %s was paid", t.ExpenseNumber),
			d.renderer.Sprintf("Payment of %s for expense %s was processed.", amount, t.ExpenseNumber), true
	case events.EventTypeCancelled:
		return d.renderer.Sprintf("Expense %s was cancelled", t.ExpenseNumber),
			d.renderer.Sprintf("Expense %s for %s was cancelled: %s", t.ExpenseNumber, amount, t.Comments), true
	}
	return "", "", false
}

func (d *Dispatcher) budgetAlertMessages(ctx context.Context, e *events.BudgetAlertEvent) ([]Message, error) {
	managers, err := d.directory.ListWithCapability(ctx, e.SiteID, user.CapManageBudgets)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget managers: %w", err)
	}

	subject := d.renderer.Sprintf("Site %s passed %d%% of its monthly budget", e.SiteCode, e.Threshold)
	body := d.renderer.Sprintf("Monthly spend is %s of %s (%s%% used).",
		d.renderer.Number(e.MonthlySpend), d.renderer.Number(e.MonthlyBudget), d.renderer.Number(e.UtilizationAfter))

	out := make([]Message, 0, len(managers))
	for _, u := range managers {
		out = append(out, d.message(e, u, e.ExpenseID, e.SiteID, subject, body))
	}
	return out, nil
}

func (d *Dispatcher) message(ev events.Event, u *user.User, expenseID, siteID int64, subject, body string) Message {
	return Message{
		EventID:     ev.EventID(),
		EventType:   ev.EventType(),
		ExpenseID:   expenseID,
		SiteID:      siteID,
		RecipientID: u.ID,
		Recipient:   u.Email,
		Subject:     subject,
		Body:        body,
	}
}
