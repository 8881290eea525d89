package payment

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/user"
)

// ExpenseReader applies expense read access for the actor.
type ExpenseReader interface {
	Get(ctx context.Context, actor user.Actor, id int64) (*expense.Expense, error)
}

type Service struct {
	repo     Repository
	expenses ExpenseReader
	logger   *slog.Logger
}

func NewService(repo Repository, expenses ExpenseReader, logger *slog.Logger) *Service {
	return &Service{repo: repo, expenses: expenses, logger: logger}
}

// GetForExpense returns the payment of an expense the actor can see.
func (s *Service) GetForExpense(ctx context.Context, actor user.Actor, expenseID int64) (*Payment, error) {
	exp, err := s.expenses.Get(ctx, actor, expenseID)
	if err != nil {
		return nil, err
	}
	if exp.Status != expense.StatusPaymentProcessed {
		return nil, internal.ErrPaymentNotFound
	}

	p, err := s.repo.GetByExpenseID(ctx, expenseID)
	if err != nil {
		if internal.IsNotFound(err) {
			s.logger.Error("paid expense has no payment record", "expense_id", expenseID)
		}
		return nil, err
	}
	return p, nil
}

// List is the finance ledger view across all sites.
func (s *Service) List(ctx context.Context, actor user.Actor, filter ListFilter) ([]*Payment, []Total, error) {
	if !actor.Can(user.CapProcessPayment) && !actor.Can(user.CapViewAllExpense) {
		return nil, nil, internal.ErrNotAuthorized
	}
	if err := filter.Validate(); err != nil {
		return nil, nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}

	payments, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list payments", "error", err, "user_id", actor.ID)
		return nil, nil, internal.NewInternalError("failed to list payments", err)
	}
	totals, err := s.repo.Totals(ctx, filter.From, filter.To)
	if err != nil {
		s.logger.Error("failed to total payments", "error", err, "user_id", actor.ID)
		return nil, nil, internal.NewInternalError("failed to total payments", err)
	}
	return payments, totals, nil
}
