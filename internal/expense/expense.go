package expense

import (
	"time"

	"github.com/frahmantamala/expense-approval/internal/category"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusUnderReview      Status = "under_review"
	StatusApprovedL1       Status = "approved_l1"
	StatusApprovedL2       Status = "approved_l2"
	StatusApprovedL3       Status = "approved_l3"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
	StatusPaymentProcessed Status = "payment_processed"
	StatusReimbursed       Status = "reimbursed"
	StatusRefunded         Status = "refunded"
	StatusReserved         Status = "reserved"
)

// StatusReadyForPayment is the single status finance may pay from.
const StatusReadyForPayment = StatusApproved

var approvedAtLevel = map[int]Status{
	1: StatusApprovedL1,
	2: StatusApprovedL2,
	3: StatusApprovedL3,
}

// ApprovedAtLevel returns the intermediate status for a cleared level.
func ApprovedAtLevel(level int) Status {
	return approvedAtLevel[level]
}

// InApproval reports whether the expense is waiting on an approver.
func (s Status) InApproval() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusApprovedL1, StatusApprovedL2, StatusApprovedL3:
		return true
	}
	return false
}

// Cancellable covers draft and every approval-path status.
func (s Status) Cancellable() bool {
	return s == StatusDraft || s.InApproval()
}

// Terminal statuses never carry pending approvers.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusPaymentProcessed, StatusReimbursed, StatusRefunded:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApprovedL1, StatusApprovedL2, StatusApprovedL3,
		StatusApproved, StatusRejected, StatusCancelled, StatusPaymentProcessed, StatusReimbursed,
		StatusRefunded, StatusReserved:
		return true
	}
	return false
}

const (
	PaymentMethodCash         = "cash"
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodEWallet      = "e_wallet"
)

var paymentMethods = map[string]bool{
	PaymentMethodCash:         true,
	PaymentMethodCard:         true,
	PaymentMethodBankTransfer: true,
	PaymentMethodEWallet:      true,
}

type VehicleKM struct {
	StartKM decimal.Decimal `json:"start_km"`
	EndKM   decimal.Decimal `json:"end_km"`
	Rate    decimal.Decimal `json:"rate"`
}

// Distance is EndKM - StartKM.
func (v VehicleKM) Distance() decimal.Decimal {
	return v.EndKM.Sub(v.StartKM)
}

type Travel struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type Accommodation struct {
	Hotel    string    `json:"hotel"`
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

type Details struct {
	VehicleKM     *VehicleKM     `json:"vehicle_km,omitempty"`
	Travel        *Travel        `json:"travel,omitempty"`
	Accommodation *Accommodation `json:"accommodation,omitempty"`
}

type Location struct {
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type Expense struct {
	ID                    int64            `json:"id"`
	Number                string           `json:"number"`
	SubmitterID           int64            `json:"submitter_id"`
	SiteID                int64            `json:"site_id"`
	Amount                decimal.Decimal  `json:"amount"`
	OriginalAmount        *decimal.Decimal `json:"original_amount,omitempty"`
	Currency              string           `json:"currency"`
	Category              category.Name    `json:"category"`
	Vendor                string           `json:"vendor,omitempty"`
	Description           string           `json:"description"`
	PaymentMethod         string           `json:"payment_method"`
	ExpenseDate           time.Time        `json:"expense_date"`
	Details               Details          `json:"details"`
	Location              *Location        `json:"location,omitempty"`
	ReceiptFileName       *string          `json:"receipt_filename,omitempty"`
	ReceiptHash           *string          `json:"receipt_hash,omitempty"`
	NormalizedKey         string           `json:"normalized_key,omitempty"`
	Status                Status           `json:"status"`
	CurrentApprovalLevel  int              `json:"current_approval_level"`
	RequiredApprovalLevel int              `json:"required_approval_level"`
	PolicyFlags           []string         `json:"policy_flags"`
	RiskScore             int              `json:"risk_score"`
	ModificationReason    *string          `json:"modification_reason,omitempty"`
	Version               int              `json:"version"`
	SubmittedAt           *time.Time       `json:"submitted_at,omitempty"`
	ApprovedAt            *time.Time       `json:"approved_at,omitempty"`
	IsActive              bool             `json:"-"`
	IsDeleted             bool             `json:"-"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func (e *Expense) IsOwnedBy(userID int64) bool {
	return e.SubmitterID == userID
}

// CanView applies read access: the owner, site approvers for their site and
// cross-site readers.
func (e *Expense) CanView(actor user.Actor) bool {
	if e.IsOwnedBy(actor.ID) {
		return true
	}
	if actor.Can(user.CapViewAllExpense) {
		return true
	}
	return actor.Can(user.CapViewSiteExpense) && actor.InSite(e.SiteID)
}

func (e *Expense) HasFlag(flag string) bool {
	for _, f := range e.PolicyFlags {
		if f == flag {
			return true
		}
	}
	return false
}

func (e *Expense) AddFlag(flag string) {
	if !e.HasFlag(flag) {
		e.PolicyFlags = append(e.PolicyFlags, flag)
	}
}

func ToDataModel(e *Expense) *expenseDatamodel.Expense {
	m := &expenseDatamodel.Expense{
		ID:                    e.ID,
		Number:                e.Number,
		SubmitterID:           e.SubmitterID,
		SiteID:                e.SiteID,
		Amount:                e.Amount,
		OriginalAmount:        e.OriginalAmount,
		Currency:              e.Currency,
		Category:              string(e.Category),
		Vendor:                e.Vendor,
		Description:           e.Description,
		PaymentMethod:         e.PaymentMethod,
		ExpenseDate:           e.ExpenseDate,
		ReceiptFileName:       e.ReceiptFileName,
		ReceiptHash:           e.ReceiptHash,
		NormalizedKey:         e.NormalizedKey,
		Status:                string(e.Status),
		CurrentApprovalLevel:  e.CurrentApprovalLevel,
		RequiredApprovalLevel: e.RequiredApprovalLevel,
		PolicyFlags:           e.PolicyFlags,
		RiskScore:             e.RiskScore,
		ModificationReason:    e.ModificationReason,
		Version:               e.Version,
		SubmittedAt:           e.SubmittedAt,
		ApprovedAt:            e.ApprovedAt,
		IsActive:              e.IsActive,
		IsDeleted:             e.IsDeleted,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
	if v := e.Details.VehicleKM; v != nil {
		m.Details.VehicleKM = &expenseDatamodel.VehicleKM{StartKM: v.StartKM, EndKM: v.EndKM, Rate: v.Rate}
	}
	if t := e.Details.Travel; t != nil {
		m.Details.Travel = &expenseDatamodel.Travel{From: t.From, To: t.To, StartDate: t.StartDate, EndDate: t.EndDate}
	}
	if a := e.Details.Accommodation; a != nil {
		m.Details.Accommodation = &expenseDatamodel.Accommodation{Hotel: a.Hotel, CheckIn: a.CheckIn, CheckOut: a.CheckOut}
	}
	if l := e.Location; l != nil {
		m.Location = &expenseDatamodel.Location{City: l.City, Latitude: l.Latitude, Longitude: l.Longitude}
	}
	return m
}

func FromDataModel(m *expenseDatamodel.Expense) *Expense {
	e := &Expense{
		ID:                    m.ID,
		Number:                m.Number,
		SubmitterID:           m.SubmitterID,
		SiteID:                m.SiteID,
		Amount:                m.Amount,
		OriginalAmount:        m.OriginalAmount,
		Currency:              m.Currency,
		Category:              category.Name(m.Category),
		Vendor:                m.Vendor,
		Description:           m.Description,
		PaymentMethod:         m.PaymentMethod,
		ExpenseDate:           m.ExpenseDate,
		ReceiptFileName:       m.ReceiptFileName,
		ReceiptHash:           m.ReceiptHash,
		NormalizedKey:         m.NormalizedKey,
		Status:                Status(m.Status),
		CurrentApprovalLevel:  m.CurrentApprovalLevel,
		RequiredApprovalLevel: m.RequiredApprovalLevel,
		PolicyFlags:           m.PolicyFlags,
		RiskScore:             m.RiskScore,
		ModificationReason:    m.ModificationReason,
		Version:               m.Version,
		SubmittedAt:           m.SubmittedAt,
		ApprovedAt:            m.ApprovedAt,
		IsActive:              m.IsActive,
		IsDeleted:             m.IsDeleted,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	if v := m.Details.VehicleKM; v != nil {
		e.Details.VehicleKM = &VehicleKM{StartKM: v.StartKM, EndKM: v.EndKM, Rate: v.Rate}
	}
	if t := m.Details.Travel; t != nil {
		e.Details.Travel = &Travel{From: t.From, To: t.To, StartDate: t.StartDate, EndDate: t.EndDate}
	}
	if a := m.Details.Accommodation; a != nil {
		e.Details.Accommodation = &Accommodation{Hotel: a.Hotel, CheckIn: a.CheckIn, CheckOut: a.CheckOut}
	}
	if l := m.Location; l != nil {
		e.Location = &Location{City: l.City, Latitude: l.Latitude, Longitude: l.Longitude}
	}
	if e.PolicyFlags == nil {
		e.PolicyFlags = []string{}
	}
	return e
}

func FromDataModelSlice(rows []*expenseDatamodel.Expense) []*Expense {
	result := make([]*Expense, len(rows))
	for i, row := range rows {
		result[i] = FromDataModel(row)
	}
	return result
}
