package expense

import (
	"strings"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/category"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DraftFields are the submitter-editable parts of an expense.
type DraftFields struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	Vendor          string          `json:"vendor,omitempty"`
	Description     string          `json:"description"`
	PaymentMethod   string          `json:"payment_method"`
	ExpenseDate     time.Time       `json:"expense_date"`
	Details         Details         `json:"details"`
	Location        *Location       `json:"location,omitempty"`
	ReceiptFileName *string         `json:"receipt_filename,omitempty"`
	// Receipt is the raw receipt content, base64 in JSON. Only its hash is kept.
	Receipt []byte `json:"receipt,omitempty"`
}

type CreateDraftDTO struct {
	Number string `json:"number,omitempty"`
	SiteID *int64 `json:"site_id,omitempty"`
	DraftFields
}

type UpdateDraftDTO struct {
	Version int `json:"version"`
	DraftFields
}

type ListFilter struct {
	SubmitterID *int64
	SiteID      *int64
	Statuses    []Status
	Limit       int
	Offset      int
}

const maxNumberLength = 32

// NormalizeCurrency upper-cases and checks an ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", internal.NewValidationFieldError("currency", "currency must be an ISO 4217 code", internal.ErrCodeInvalidCurrency)
	}
	return unit.String(), nil
}

// Validate checks field shape and the category-specific sub-structures.
func (d DraftFields) Validate() error {
	v := validation.NewValidator()
	v.Field("amount", d.Amount).
		PositiveDecimal(internal.ErrCodeInvalidAmount).
		MaxScale(2, internal.ErrCodeInvalidAmount)
	v.Field("currency", d.Currency).Required()
	v.Field("category", d.Category).Required().Custom(func(value interface{}) *internal.AppError {
		if s, _ := value.(string); s != "" {
			if _, ok := category.Parse(s); !ok {
				return internal.NewValidationFieldError("category", "category is not recognised", internal.ErrCodeInvalidCategory)
			}
		}
		return nil
	})
	v.Field("description", d.Description).Required().MaxLength(500)
	v.Field("vendor", d.Vendor).MaxLength(255)
	v.Field("payment_method", d.PaymentMethod).Required().Custom(func(value interface{}) *internal.AppError {
		if s, _ := value.(string); s != "" && !paymentMethods[strings.ToLower(s)] {
			return internal.NewValidationFieldError("payment_method", "payment method is not supported", internal.ErrCodeValidationFailed)
		}
		return nil
	})
	v.Field("expense_date", d.ExpenseDate).Required().NotFuture()
	if err := v.Validate(); err != nil {
		return err
	}

	if _, err := NormalizeCurrency(d.Currency); err != nil {
		return err
	}

	name, _ := category.Parse(d.Category)
	return validateDetails(name, d.Amount, d.Details)
}

func validateDetails(name category.Name, amount decimal.Decimal, details Details) error {
	switch name {
	case category.VehicleKM:
		km := details.VehicleKM
		if km == nil {
			return internal.NewValidationFieldError("details.vehicle_km", "vehicle km details are required", internal.ErrCodeValidationFailed)
		}
		if !km.EndKM.GreaterThan(km.StartKM) {
			return internal.NewValidationFieldError("details.vehicle_km.end_km", "end_km must be greater than start_km", internal.ErrCodeValidationFailed)
		}
		if !km.Rate.IsPositive() {
			return internal.NewValidationFieldError("details.vehicle_km.rate", "rate must be positive", internal.ErrCodeValidationFailed)
		}
		if expected := km.Distance().Mul(km.Rate).Round(2); !expected.Equal(amount) {
			return internal.NewValidationFieldError("amount", "amount must equal distance times rate ("+expected.StringFixed(2)+")", internal.ErrCodeInvalidAmount)
		}
	case category.Travel:
		if t := details.Travel; t != nil && !t.StartDate.IsZero() && !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate) {
			return internal.NewValidationFieldError("details.travel.end_date", "travel end date cannot be before start date", internal.ErrCodeInvalidDate)
		}
	case category.Accommodation:
		if a := details.Accommodation; a != nil && !a.CheckOut.After(a.CheckIn) {
			return internal.NewValidationFieldError("details.accommodation.check_out", "check-out must be after check-in", internal.ErrCodeInvalidDate)
		}
	}
	return nil
}

func validateNumber(number string) error {
	if len(number) > maxNumberLength || strings.ContainsAny(number, " \t\n") {
		return internal.NewValidationFieldError("number", "number must be at most 32 characters without spaces", internal.ErrCodeValidationFailed)
	}
	return nil
}

// ValidateForSubmit re-checks a stored draft before it enters approval.
func (e *Expense) ValidateForSubmit() error {
	fields := DraftFields{
		Amount:        e.Amount,
		Currency:      e.Currency,
		Category:      string(e.Category),
		Vendor:        e.Vendor,
		Description:   e.Description,
		PaymentMethod: e.PaymentMethod,
		ExpenseDate:   e.ExpenseDate,
		Details:       e.Details,
	}
	if err := fields.Validate(); err != nil {
		return err
	}
	if e.SiteID == 0 || e.SubmitterID == 0 || e.Number == "" {
		return internal.NewValidationError("expense is missing its number, site or submitter", internal.ErrCodeValidationFailed)
	}
	return nil
}

// apply copies validated fields onto e.
func (d DraftFields) apply(e *Expense, receiptHash func([]byte) string) {
	name, _ := category.Parse(d.Category)
	cur, _ := NormalizeCurrency(d.Currency)

	e.Amount = d.Amount
	e.Currency = cur
	e.Category = name
	e.Vendor = strings.TrimSpace(d.Vendor)
	e.Description = strings.TrimSpace(d.Description)
	e.PaymentMethod = strings.ToLower(d.PaymentMethod)
	e.ExpenseDate = d.ExpenseDate
	e.Details = Details{}
	switch name {
	case category.VehicleKM:
		e.Details.VehicleKM = d.Details.VehicleKM
	case category.Travel:
		e.Details.Travel = d.Details.Travel
	case category.Accommodation:
		e.Details.Accommodation = d.Details.Accommodation
	}
	e.Location = d.Location
	e.ReceiptFileName = d.ReceiptFileName
	if hash := receiptHash(d.Receipt); hash != "" {
		e.ReceiptHash = &hash
	}
}
