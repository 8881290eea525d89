package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/budget"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/policy"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/frahmantamala/expense-approval/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Config struct {
	// LevelOnAmountChange is internal.LevelOnAmountChangeFixed or
	// internal.LevelOnAmountChangeRaiseOnly.
	LevelOnAmountChange string
}

// Engine owns the expense status machine, the pending-approver set and the
// approval history. Each operation is one transaction; events are published
// only after it commits.
type Engine struct {
	store     Store
	evaluator *policy.Evaluator
	ledger    *budget.Ledger
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(store Store, evaluator *policy.Evaluator, ledger *budget.Ledger, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {
	if cfg.LevelOnAmountChange == "" {
		cfg.LevelOnAmountChange = internal.LevelOnAmountChangeFixed
	}
	return &Engine{
		store:     store,
		evaluator: evaluator,
		ledger:    ledger,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logger.Ctx(ctx, e.logger)
}

// outbox collects events raised inside a transaction.
type outbox []events.Event

func (o *outbox) transition(eventType string, t events.Transition) {
	*o = append(*o, events.NewTransitionEvent(eventType, t))
}

func (o *outbox) budgetAlert(a *budget.Alert, expenseID int64) {
	if a == nil {
		return
	}
	*o = append(*o, events.NewBudgetAlertEvent(a.SiteID, a.SiteCode, expenseID, a.Threshold,
		a.UtilizationBefore, a.UtilizationAfter, a.MonthlySpend, a.MonthlyBudget))
}

// Submit moves a draft into the approval path, or settles it as approved when
// no approval level is required.
func (e *Engine) Submit(ctx context.Context, actor user.Actor, expenseID int64) (*expense.Expense, error) {
	var (
		out  *expense.Expense
		sent outbox
	)

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		exp, err := tx.GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if !exp.IsOwnedBy(actor.ID) {
			return internal.NewNotAuthorizedError("only the submitter may submit this expense")
		}
		if exp.Status != expense.StatusDraft {
			return internal.ErrInvalidState.WithMessage("only draft expenses can be submitted")
		}
		if err := exp.ValidateForSubmit(); err != nil {
			return err
		}
		taken, err := tx.NumberTaken(ctx, exp.Number, exp.ID)
		if err != nil {
			return fmt.Errorf("check expense number: %w", err)
		}
		if taken {
			return internal.NewDuplicateNumberError(exp.Number)
		}

		s, err := tx.GetSite(ctx, exp.SiteID)
		if err != nil {
			return err
		}

		verdict := e.evaluator.Evaluate(ctx, candidateFor(exp), s, tx)
		for _, f := range verdict.FlagStrings() {
			exp.AddFlag(f)
		}
		escalate := verdict.NextAction == policy.ActionEscalate
		if !e.ledger.IsWithinBudget(s, exp.Amount, string(exp.Category)) {
			exp.AddFlag(string(policy.FlagOverBudget))
			escalate = true
		}

		required := e.ledger.RequiredLevel(s, exp.Amount)
		if required == 0 && escalate {
			required = 1
		}

		now := e.now().UTC()
		from := exp.Status
		exp.RiskScore = verdict.RiskScore
		exp.NormalizedKey = verdict.NormalizedKey
		if verdict.ReceiptHash != "" {
			hash := verdict.ReceiptHash
			exp.ReceiptHash = &hash
		}
		exp.RequiredApprovalLevel = required
		exp.CurrentApprovalLevel = 0
		exp.SubmittedAt = &now

		t := transitionOf(exp, actor.ID, from)

		if required == 0 {
			exp.Status = expense.StatusApproved
			exp.ApprovedAt = &now
			if err := tx.AppendHistory(ctx, &HistoryEntry{
				ExpenseID: exp.ID,
				Level:     0,
				Action:    ActionAutoApproved,
				Comments:  "within auto-approval limit",
				Amount:    exp.Amount,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
			alert, _, err := e.ledger.ApplySpend(ctx, tx, s, exp.ID, exp.Amount, string(exp.Category))
			if err != nil {
				return err
			}
			sent.budgetAlert(alert, exp.ID)
		} else {
			exp.Status = expense.StatusSubmitted
			if escalate {
				exp.Status = expense.StatusUnderReview
			}
			approvers, err := e.approverPool(ctx, tx, exp.SiteID, 1)
			if err != nil {
				return err
			}
			if err := tx.CreatePendingApprovers(ctx, exp.ID, 1, approvers, now); err != nil {
				return fmt.Errorf("create pending approvers: %w", err)
			}
			t.NextApproverIDs = approvers
		}

		if err := tx.SaveExpense(ctx, exp); err != nil {
			return err
		}

		t.ToStatus = string(exp.Status)
		sent.transition(events.EventTypeSubmissionCreated, t)
		out = exp
		return nil
	})
	if err != nil {
		e.log(ctx).Warn("submit failed", "expense_id", expenseID, "user_id", actor.ID, "error", err)
		return nil, err
	}

	e.log(ctx).Info("expense submitted",
		"expense_id", out.ID,
		"status", out.Status,
		"required_level", out.RequiredApprovalLevel,
		"risk_score", out.RiskScore,
		"flags", out.PolicyFlags)
	e.publish(ctx, sent)
	return out, nil
}

// Approve clears the expense's current level on behalf of one of its pending
// approvers. Any single approver at a level is enough.
func (e *Engine) Approve(ctx context.Context, actor user.Actor, expenseID int64, dto ApproveDTO) (*expense.Expense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var (
		out  *expense.Expense
		sent outbox
	)

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		exp, err := tx.GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if err := e.authorizeLevelAction(ctx, tx, actor, exp, dto.Level); err != nil {
			return err
		}

		now := e.now().UTC()
		from := exp.Status

		var s *site.Site
		loadSite := func() (*site.Site, error) {
			if s == nil {
				s, err = tx.GetSite(ctx, exp.SiteID)
			}
			return s, err
		}

		if dto.ModifiedAmount != nil && !dto.ModifiedAmount.Equal(exp.Amount) {
			if err := e.modifyAmount(exp, *dto.ModifiedAmount, dto.ModificationReason, loadSite); err != nil {
				return err
			}
		}

		if err := tx.AppendHistory(ctx, &HistoryEntry{
			ExpenseID:  exp.ID,
			Level:      dto.Level,
			ApproverID: &actor.ID,
			Action:     ActionApproved,
			Comments:   dto.Comments,
			Amount:     exp.Amount,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if err := tx.RetirePendingApprovers(ctx, exp.ID, dto.Level, &actor.ID, now); err != nil {
			return fmt.Errorf("retire pending approvers: %w", err)
		}

		if dto.Level > exp.CurrentApprovalLevel {
			exp.CurrentApprovalLevel = dto.Level
		}

		t := transitionOf(exp, actor.ID, from)
		t.Level = dto.Level
		t.Comments = dto.Comments

		if exp.CurrentApprovalLevel < exp.RequiredApprovalLevel {
			exp.Status = expense.ApprovedAtLevel(dto.Level)
			next := dto.Level + 1
			approvers, err := e.approverPool(ctx, tx, exp.SiteID, next)
			if err != nil {
				return err
			}
			if err := tx.CreatePendingApprovers(ctx, exp.ID, next, approvers, now); err != nil {
				return fmt.Errorf("create pending approvers: %w", err)
			}
			t.NextApproverIDs = approvers
		} else {
			exp.Status = expense.StatusApproved
			exp.ApprovedAt = &now
			if err := tx.RetirePendingApprovers(ctx, exp.ID, 0, nil, now); err != nil {
				return fmt.Errorf("clear pending approvers: %w", err)
			}
			s, err := loadSite()
			if err != nil {
				return err
			}
			alert, _, err := e.ledger.ApplySpend(ctx, tx, s, exp.ID, exp.Amount, string(exp.Category))
			if err != nil {
				return err
			}
			sent.budgetAlert(alert, exp.ID)
		}

		if err := tx.SaveExpense(ctx, exp); err != nil {
			return err
		}

		t.ToStatus = string(exp.Status)
		t.Amount = exp.Amount
		sent.transition(events.EventTypeLevelApproved, t)
		out = exp
		return nil
	})
	if err != nil {
		e.log(ctx).Warn("approve failed", "expense_id", expenseID, "approver_id", actor.ID, "level", dto.Level, "error", err)
		return nil, err
	}

	e.log(ctx).Info("expense approved at level",
		"expense_id", out.ID,
		"approver_id", actor.ID,
		"level", dto.Level,
		"to_status", out.Status)
	e.publish(ctx, sent)
	return out, nil
}

// Reject is final: every pending row is closed and no later level can act.
func (e *Engine) Reject(ctx context.Context, actor user.Actor, expenseID int64, dto RejectDTO) (*expense.Expense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var (
		out  *expense.Expense
		sent outbox
	)

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		exp, err := tx.GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if err := e.authorizeLevelAction(ctx, tx, actor, exp, dto.Level); err != nil {
			return err
		}

		now := e.now().UTC()
		from := exp.Status

		if err := tx.AppendHistory(ctx, &HistoryEntry{
			ExpenseID:  exp.ID,
			Level:      dto.Level,
			ApproverID: &actor.ID,
			Action:     ActionRejected,
			Comments:   dto.Comments,
			Amount:     exp.Amount,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if err := tx.RetirePendingApprovers(ctx, exp.ID, 0, &actor.ID, now); err != nil {
			return fmt.Errorf("clear pending approvers: %w", err)
		}

		exp.Status = expense.StatusRejected
		if err := tx.SaveExpense(ctx, exp); err != nil {
			return err
		}

		t := transitionOf(exp, actor.ID, from)
		t.Level = dto.Level
		t.Comments = dto.Comments
		sent.transition(events.EventTypeRejected, t)
		out = exp
		return nil
	})
	if err != nil {
		e.log(ctx).Warn("reject failed", "expense_id", expenseID, "approver_id", actor.ID, "level", dto.Level, "error", err)
		return nil, err
	}

	e.log(ctx).Info("expense rejected", "expense_id", out.ID, "approver_id", actor.ID, "level", dto.Level)
	e.publish(ctx, sent)
	return out, nil
}

// ProcessPayment is the finance handoff. Only approved expenses can be paid;
// a second call fails with ErrPaymentProcessed and never counts spend twice.
func (e *Engine) ProcessPayment(ctx context.Context, actor user.Actor, expenseID int64, dto PaymentDTO) (*expense.Expense, error) {
	if !actor.Can(user.CapProcessPayment) {
		return nil, internal.NewNotAuthorizedError("only finance may process payments")
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var (
		out  *expense.Expense
		sent outbox
	)

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		exp, err := tx.GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if exp.Status == expense.StatusPaymentProcessed {
			return internal.ErrPaymentProcessed
		}
		if exp.Status != expense.StatusReadyForPayment {
			return internal.ErrInvalidState.WithMessage("expense is not ready for payment")
		}

		now := e.now().UTC()
		from := exp.Status

		p := Payment{
			ExpenseID:   exp.ID,
			Reference:   strings.TrimSpace(dto.Reference),
			Amount:      exp.Amount,
			Currency:    exp.Currency,
			PaymentDate: now,
			ProcessedBy: actor.ID,
		}
		if dto.Amount != nil {
			p.Amount = *dto.Amount
		}
		if dto.PaymentDate != nil {
			p.PaymentDate = dto.PaymentDate.UTC()
		}
		if p.Reference == "" {
			p.Reference = "PAY-" + uuid.New().String()
		}

		recorded, err := tx.RecordPayment(ctx, p)
		if err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		if !recorded {
			return internal.ErrPaymentProcessed
		}

		s, err := tx.GetSite(ctx, exp.SiteID)
		if err != nil {
			return err
		}
		alert, _, err := e.ledger.ApplySpend(ctx, tx, s, exp.ID, exp.Amount, string(exp.Category))
		if err != nil {
			return err
		}
		sent.budgetAlert(alert, exp.ID)

		if err := tx.RetirePendingApprovers(ctx, exp.ID, 0, nil, now); err != nil {
			return fmt.Errorf("clear pending approvers: %w", err)
		}
		if err := tx.AppendHistory(ctx, &HistoryEntry{
			ExpenseID:  exp.ID,
			Level:      PaymentLevel,
			ApproverID: &actor.ID,
			Action:     ActionPaymentProcessed,
			Comments:   "payment reference " + p.Reference,
			Amount:     p.Amount,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		exp.Status = expense.StatusPaymentProcessed
		if err := tx.SaveExpense(ctx, exp); err != nil {
			return err
		}

		t := transitionOf(exp, actor.ID, from)
		t.Level = PaymentLevel
		t.Amount = p.Amount
		sent.transition(events.EventTypePaymentProcessed, t)
		out = exp
		return nil
	})
	if err != nil {
		e.log(ctx).Warn("payment failed", "expense_id", expenseID, "user_id", actor.ID, "error", err)
		return nil, err
	}

	e.log(ctx).Info("payment processed", "expense_id", out.ID, "user_id", actor.ID)
	e.publish(ctx, sent)
	return out, nil
}

// Cancel is open to the owner, or to an l3 approver as an override, while the
// expense has not settled.
func (e *Engine) Cancel(ctx context.Context, actor user.Actor, expenseID int64, dto CancelDTO) (*expense.Expense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var (
		out  *expense.Expense
		sent outbox
	)

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		exp, err := tx.GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if !exp.IsOwnedBy(actor.ID) && !actor.Can(user.CapCancelAny) {
			return internal.NewNotAuthorizedError("only the submitter may cancel this expense")
		}
		if !exp.Status.Cancellable() {
			return internal.ErrInvalidState.WithMessage("expense can no longer be cancelled")
		}

		now := e.now().UTC()
		from := exp.Status

		if err := tx.RetirePendingApprovers(ctx, exp.ID, 0, nil, now); err != nil {
			return fmt.Errorf("clear pending approvers: %w", err)
		}
		if err := tx.AppendHistory(ctx, &HistoryEntry{
			ExpenseID:  exp.ID,
			Level:      exp.CurrentApprovalLevel,
			ApproverID: &actor.ID,
			Action:     ActionCancelled,
			Comments:   "cancelled: " + strings.TrimSpace(dto.Reason),
			Amount:     exp.Amount,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		exp.Status = expense.StatusCancelled
		if err := tx.SaveExpense(ctx, exp); err != nil {
			return err
		}

		t := transitionOf(exp, actor.ID, from)
		t.Level = exp.CurrentApprovalLevel
		t.Comments = dto.Reason
		sent.transition(events.EventTypeCancelled, t)
		out = exp
		return nil
	})
	if err != nil {
		e.log(ctx).Warn("cancel failed", "expense_id", expenseID, "user_id", actor.ID, "error", err)
		return nil, err
	}

	e.log(ctx).Info("expense cancelled", "expense_id", out.ID, "user_id", actor.ID)
	e.publish(ctx, sent)
	return out, nil
}

func (e *Engine) History(ctx context.Context, actor user.Actor, expenseID int64) ([]HistoryEntry, error) {
	if _, err := e.visibleExpense(ctx, actor, expenseID); err != nil {
		return nil, err
	}
	return e.store.History(ctx, expenseID)
}

func (e *Engine) PendingApprovers(ctx context.Context, actor user.Actor, expenseID int64) ([]PendingApprover, error) {
	if _, err := e.visibleExpense(ctx, actor, expenseID); err != nil {
		return nil, err
	}
	return e.store.PendingApprovers(ctx, expenseID)
}

// Inbox lists expenses waiting on the actor.
func (e *Engine) Inbox(ctx context.Context, actor user.Actor, limit, offset int) ([]*expense.Expense, error) {
	if !actor.Can(user.CapApproveExpense) {
		return []*expense.Expense{}, nil
	}
	return e.store.Inbox(ctx, actor.ID, limit, offset)
}

func (e *Engine) visibleExpense(ctx context.Context, actor user.Actor, expenseID int64) (*expense.Expense, error) {
	exp, err := e.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !exp.CanView(actor) {
		return nil, internal.ErrNotAuthorized
	}
	return exp, nil
}

// authorizeLevelAction runs the shared approve/reject checks in order: the
// expense is in approval, level is the next one, the actor's role acts at
// level, and the actor holds an active pending row there.
func (e *Engine) authorizeLevelAction(ctx context.Context, tx Tx, actor user.Actor, exp *expense.Expense, level int) error {
	if !exp.Status.InApproval() {
		return internal.ErrInvalidState.WithMessage("expense is not awaiting approval")
	}
	if level != exp.CurrentApprovalLevel+1 {
		return internal.ErrInvalidState.WithMessage(fmt.Sprintf("expense is awaiting level %d", exp.CurrentApprovalLevel+1))
	}
	if actor.Role.Level() != level {
		return internal.NewNotAuthorizedError(fmt.Sprintf("role %s cannot act at level %d", actor.Role, level))
	}

	pending, err := tx.ListPendingApprovers(ctx, exp.ID, level)
	if err != nil {
		return fmt.Errorf("list pending approvers: %w", err)
	}
	for _, p := range pending {
		if p.ApproverID == actor.ID {
			return nil
		}
	}
	return internal.NewNotAuthorizedError("approver is not assigned to this expense")
}

func (e *Engine) modifyAmount(exp *expense.Expense, amount decimal.Decimal, reason string, loadSite func() (*site.Site, error)) error {
	if exp.OriginalAmount == nil {
		original := exp.Amount
		exp.OriginalAmount = &original
	}
	exp.Amount = amount
	r := strings.TrimSpace(reason)
	exp.ModificationReason = &r

	if e.cfg.LevelOnAmountChange != internal.LevelOnAmountChangeRaiseOnly {
		return nil
	}
	s, err := loadSite()
	if err != nil {
		return err
	}
	if level := e.ledger.RequiredLevel(s, amount); level > exp.RequiredApprovalLevel {
		e.logger.Info("required level raised after amount change",
			"expense_id", exp.ID,
			"from_level", exp.RequiredApprovalLevel,
			"to_level", level)
		exp.RequiredApprovalLevel = level
	}
	return nil
}

// approverPool resolves who is fanned out to at level: site approvers for L1
// and L2, every l3 approver for L3.
func (e *Engine) approverPool(ctx context.Context, tx Tx, siteID int64, level int) ([]int64, error) {
	var (
		ids []int64
		err error
	)
	if level == user.MaxApprovalLevel {
		ids, err = tx.ActiveL3Approvers(ctx)
	} else {
		ids, err = tx.ActiveApproversForSite(ctx, siteID, level)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve approvers for level %d: %w", level, err)
	}
	if len(ids) == 0 {
		return nil, internal.ErrNoActiveApprovers.WithMessage(fmt.Sprintf("no active approvers for level %d", level))
	}
	return ids, nil
}

// publish hands committed events to the notifier. Failures are logged and
// never reach the caller.
func (e *Engine) publish(ctx context.Context, sent outbox) {
	if e.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range sent {
		if err := e.notifier.Publish(ctx, ev); err != nil {
			e.log(ctx).Error("failed to publish workflow event", "event_type", ev.EventType(), "error", err)
		}
	}
}

func transitionOf(exp *expense.Expense, actorID int64, from expense.Status) events.Transition {
	return events.Transition{
		ExpenseID:     exp.ID,
		ExpenseNumber: exp.Number,
		SiteID:        exp.SiteID,
		SubmitterID:   exp.SubmitterID,
		ActorID:       actorID,
		FromStatus:    string(from),
		ToStatus:      string(exp.Status),
		Amount:        exp.Amount,
		Currency:      exp.Currency,
	}
}

func candidateFor(exp *expense.Expense) policy.Candidate {
	c := policy.Candidate{
		ExpenseID:     exp.ID,
		SubmitterID:   exp.SubmitterID,
		Amount:        exp.Amount,
		Category:      exp.Category,
		Vendor:        exp.Vendor,
		Description:   exp.Description,
		PaymentMethod: exp.PaymentMethod,
		ExpenseDate:   exp.ExpenseDate,
	}
	if exp.ReceiptHash != nil {
		c.ReceiptHash = *exp.ReceiptHash
	}
	if l := exp.Location; l != nil {
		c.Location = &policy.Location{City: l.City, Latitude: l.Latitude, Longitude: l.Longitude}
	}
	return c
}
