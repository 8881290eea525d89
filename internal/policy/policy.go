package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/frahmantamala/expense-approval/internal/category"
	"github.com/shopspring/decimal"
)

type Flag string

const (
	FlagDuplicateReceipt   Flag = "DUPLICATE_RECEIPT"
	FlagSoftDuplicate      Flag = "SOFT_DUPLICATE"
	FlagCashOverCap        Flag = "CASH_OVER_CAP"
	FlagSuspect            Flag = "SUSPECT"
	FlagDirectorEscalation Flag = "DIRECTOR_ESCALATION"
	FlagGeoCityMismatch    Flag = "GEO_CITY_MISMATCH"
	FlagGeoDistance        Flag = "GEO_DISTANCE"
	FlagOverBudget         Flag = "OVER_BUDGET"
	FlagLookupUnavailable  Flag = "DUPLICATE_CHECK_UNAVAILABLE"

	overLimitPrefix = "OVER_LIMIT_"
)

// OverLimitFlag builds the per-category limit flag, e.g. OVER_LIMIT_TRAVEL.
func OverLimitFlag(c category.Name) Flag {
	return Flag(overLimitPrefix + c.FlagSuffix())
}

// escalating flags force ESCALATE regardless of score.
var escalating = map[Flag]bool{
	FlagDirectorEscalation: true,
	FlagOverBudget:         true,
}

func (f Flag) Escalates() bool {
	return escalating[f]
}

type Action string

const (
	ActionNormal   Action = "NORMAL"
	ActionEscalate Action = "ESCALATE"
)

const (
	riskDuplicateReceipt = 70
	riskSoftDuplicate    = 40
	riskOverLimit        = 30
	riskCashOverCap      = 20
	riskWeekend          = 10
	riskOverGlobalMax    = 20
	riskGeoCity          = 15
	riskGeoDistance      = 15

	maxRisk           = 100
	EscalateThreshold = 70

	// geoToleranceKM is the distance from the site beyond which a travel
	// expense is flagged.
	geoToleranceKM = 5.0
)

const PaymentMethodCash = "cash"

type Location struct {
	City      string
	Latitude  *float64
	Longitude *float64
}

// Candidate is the immutable input to an evaluation.
type Candidate struct {
	ExpenseID     int64
	SubmitterID   int64
	Amount        decimal.Decimal
	Category      category.Name
	Vendor        string
	Description   string
	PaymentMethod string
	ExpenseDate   time.Time
	Receipt       []byte
	ReceiptHash   string
	Location      *Location
}

type Result struct {
	Flags         []Flag
	RiskScore     int
	NextAction    Action
	ReceiptHash   string
	NormalizedKey string
	// Degraded is set when the duplicate lookup failed and the duplicate
	// checks were skipped.
	Degraded bool
}

func (r Result) Has(f Flag) bool {
	for _, have := range r.Flags {
		if have == f {
			return true
		}
	}
	return false
}

func (r Result) FlagStrings() []string {
	out := make([]string, len(r.Flags))
	for i, f := range r.Flags {
		out[i] = string(f)
	}
	return out
}

// HashReceipt returns the hex sha256 of the receipt content, or "" when there
// is no receipt.
func HashReceipt(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// NormalizedKey is amount(2dp)|YYYY-MM-DD|UPPER(vendor). The description
// stands in for a missing vendor.
func NormalizedKey(amount decimal.Decimal, date time.Time, vendor, description string) string {
	proxy := strings.TrimSpace(vendor)
	if proxy == "" {
		proxy = strings.TrimSpace(description)
	}
	return amount.StringFixed(2) + "|" + date.Format("2006-01-02") + "|" + strings.ToUpper(proxy)
}
