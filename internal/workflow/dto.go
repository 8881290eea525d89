package workflow

import (
	"strings"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/shopspring/decimal"
)

type ApproveDTO struct {
	Level              int              `json:"level"`
	Comments           string           `json:"comments"`
	ModifiedAmount     *decimal.Decimal `json:"modified_amount,omitempty"`
	ModificationReason string           `json:"modification_reason,omitempty"`
}

func (d ApproveDTO) Validate() error {
	if err := validateLevel(d.Level); err != nil {
		return err
	}
	if d.ModifiedAmount == nil {
		return nil
	}
	if err := validation.ValidateExpenseAmount(*d.ModifiedAmount); err != nil {
		return err
	}
	if strings.TrimSpace(d.ModificationReason) == "" {
		return internal.NewValidationFieldError("modification_reason", "a reason is required when the amount is modified", internal.ErrCodeValidationFailed)
	}
	return nil
}

type RejectDTO struct {
	Level    int    `json:"level"`
	Comments string `json:"comments"`
}

func (d RejectDTO) Validate() error {
	if err := validateLevel(d.Level); err != nil {
		return err
	}
	if strings.TrimSpace(d.Comments) == "" {
		return internal.NewValidationFieldError("comments", "a rejection reason is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

// PaymentDTO fields are optional. Amount defaults to the approved amount,
// PaymentDate to now and Reference to a generated one.
type PaymentDTO struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	PaymentDate *time.Time       `json:"payment_date,omitempty"`
	Reference   string           `json:"reference,omitempty"`
}

func (d PaymentDTO) Validate() error {
	if d.Amount != nil {
		if err := validation.ValidateExpenseAmount(*d.Amount); err != nil {
			return err
		}
	}
	if len(d.Reference) > 64 {
		return internal.NewValidationFieldError("reference", "reference is too long", internal.ErrCodeValidationFailed)
	}
	return nil
}

type CancelDTO struct {
	Reason string `json:"reason"`
}

func (d CancelDTO) Validate() error {
	if strings.TrimSpace(d.Reason) == "" {
		return internal.NewValidationFieldError("reason", "a cancellation reason is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

func validateLevel(level int) error {
	if level < 1 || level > user.MaxApprovalLevel {
		return internal.NewValidationFieldError("level", "level must be between 1 and 3", internal.ErrCodeInvalidLevel)
	}
	return nil
}
