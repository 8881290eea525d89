package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

type Expense struct {
	ID                    int64            `gorm:"primaryKey"`
	Number                string           `gorm:"column:number;uniqueIndex;not null"`
	SubmitterID           int64            `gorm:"column:submitter_id;not null;index"`
	SiteID                int64            `gorm:"column:site_id;not null;index"`
	Amount                decimal.Decimal  `gorm:"column:amount;type:decimal(18,2);not null"`
	OriginalAmount        *decimal.Decimal `gorm:"column:original_amount;type:decimal(18,2)"`
	Currency              string           `gorm:"column:currency;not null"`
	Category              string           `gorm:"column:category;not null"`
	Vendor                string           `gorm:"column:vendor"`
	Description           string           `gorm:"column:description"`
	PaymentMethod         string           `gorm:"column:payment_method"`
	ExpenseDate           time.Time        `gorm:"column:expense_date"`
	Details               Details          `gorm:"column:details;serializer:json"`
	Location              *Location        `gorm:"column:location;serializer:json"`
	ReceiptFileName       *string          `gorm:"column:receipt_filename"`
	ReceiptHash           *string          `gorm:"column:receipt_hash;index"`
	NormalizedKey         string           `gorm:"column:normalized_key;index"`
	Status                string           `gorm:"column:status;not null;index"`
	CurrentApprovalLevel  int              `gorm:"column:current_approval_level;not null;default:0"`
	RequiredApprovalLevel int              `gorm:"column:required_approval_level;not null;default:0"`
	PolicyFlags           []string         `gorm:"column:policy_flags;serializer:json"`
	RiskScore             int              `gorm:"column:risk_score;not null;default:0"`
	ModificationReason    *string          `gorm:"column:modification_reason"`
	Version               int              `gorm:"column:version;not null;default:1"`
	SubmittedAt           *time.Time       `gorm:"column:submitted_at"`
	ApprovedAt            *time.Time       `gorm:"column:approved_at"`
	IsActive              bool             `gorm:"column:is_active;not null;default:true"`
	IsDeleted             bool             `gorm:"column:is_deleted;not null;default:false"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Expense) TableName() string {
	return "expenses"
}

// Details holds the category-specific sub-structures. Only the block matching
// the expense category is populated.
type Details struct {
	VehicleKM     *VehicleKM     `json:"vehicle_km,omitempty"`
	Travel        *Travel        `json:"travel,omitempty"`
	Accommodation *Accommodation `json:"accommodation,omitempty"`
}

type VehicleKM struct {
	StartKM decimal.Decimal `json:"start_km"`
	EndKM   decimal.Decimal `json:"end_km"`
	Rate    decimal.Decimal `json:"rate"`
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

type Location struct {
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// NumberSequence backs the EXP-nnnn numbering.
type NumberSequence struct {
	Name  string `gorm:"primaryKey;column:name"`
	Value int64  `gorm:"column:value;not null;default:0"`
}

func (NumberSequence) TableName() string {
	return "number_sequences"
}
