package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeSubmissionCreated = "workflow.submission_created"
	EventTypeLevelApproved     = "workflow.level_approved"
	EventTypeRejected          = "workflow.rejected"
	EventTypePaymentProcessed  = "workflow.payment_processed"
	EventTypeCancelled         = "workflow.cancelled"
	EventTypeBudgetAlert       = "budget.alert"
)

// TransitionTypes lists every event type emitted for an expense status change.
var TransitionTypes = []string{
	EventTypeSubmissionCreated,
	EventTypeLevelApproved,
	EventTypeRejected,
	EventTypePaymentProcessed,
	EventTypeCancelled,
}

// Transition describes one committed status change.
type Transition struct {
	ExpenseID       int64
	ExpenseNumber   string
	SiteID          int64
	SubmitterID     int64
	ActorID         int64
	// Level is the approval level the transition acted on; 0 for submissions.
	Level           int
	FromStatus      string
	ToStatus        string
	Amount          decimal.Decimal
	Currency        string
	Comments        string
	NextApproverIDs []int64
}

type TransitionEvent struct {
	BaseEvent
	Transition
}

func NewTransitionEvent(eventType string, t Transition) *TransitionEvent {
	return &TransitionEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"expense_id":        t.ExpenseID,
				"expense_number":    t.ExpenseNumber,
				"site_id":           t.SiteID,
				"submitter_id":      t.SubmitterID,
				"actor_id":          t.ActorID,
				"level":             t.Level,
				"from_status":       t.FromStatus,
				"to_status":         t.ToStatus,
				"amount":            t.Amount.StringFixed(2),
				"currency":          t.Currency,
				"next_approver_ids": t.NextApproverIDs,
			},
		},
		Transition: t,
	}
}

type BudgetAlertEvent struct {
	BaseEvent
	SiteID            int64           `json:"site_id"`
	SiteCode          string          `json:"site_code"`
	ExpenseID         int64           `json:"expense_id"`
	Threshold         int             `json:"threshold"`
	UtilizationBefore decimal.Decimal `json:"utilization_before"`
	UtilizationAfter  decimal.Decimal `json:"utilization_after"`
	MonthlySpend      decimal.Decimal `json:"monthly_spend"`
	MonthlyBudget     decimal.Decimal `json:"monthly_budget"`
}

func NewBudgetAlertEvent(siteID int64, siteCode string, expenseID int64, threshold int, before, after, spend, budget decimal.Decimal) *BudgetAlertEvent {
	return &BudgetAlertEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBudgetAlert,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"site_id":            siteID,
				"site_code":          siteCode,
				"expense_id":         expenseID,
				"threshold":          threshold,
				"utilization_before": before.StringFixed(2),
				"utilization_after":  after.StringFixed(2),
				"monthly_spend":      spend.StringFixed(2),
				"monthly_budget":     budget.StringFixed(2),
			},
		},
		SiteID:            siteID,
		SiteCode:          siteCode,
		ExpenseID:         expenseID,
		Threshold:         threshold,
		UtilizationBefore: before,
		UtilizationAfter:  after,
		MonthlySpend:      spend,
		MonthlyBudget:     budget,
	}
}
