package policy

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/frahmantamala/expense-approval/internal/category"
	"github.com/frahmantamala/expense-approval/internal/site"
)

// Lookup answers duplicate questions against prior expenses. Implementations
// only consider active, non-deleted expenses and exclude excludeID.
type Lookup interface {
	ReceiptHashExists(ctx context.Context, hash string, excludeID int64) (bool, error)
	NormalizedKeyExists(ctx context.Context, submitterID int64, key string, from, to time.Time, excludeID int64) (bool, error)
}

type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate scores c against the site policy. Lookup failures never fail the
// evaluation; they mark the result degraded.
func (e *Evaluator) Evaluate(ctx context.Context, c Candidate, s *site.Site, lookup Lookup) Result {
	res := Result{
		ReceiptHash:   c.ReceiptHash,
		NormalizedKey: NormalizedKey(c.Amount, c.ExpenseDate, c.Vendor, c.Description),
	}
	if res.ReceiptHash == "" {
		res.ReceiptHash = HashReceipt(c.Receipt)
	}

	risk := 0
	add := func(f Flag, points int) {
		if !res.Has(f) {
			res.Flags = append(res.Flags, f)
		}
		risk += points
	}

	risk += e.duplicateChecks(ctx, c, s, lookup, &res)
	ruleChecks(c, s, add)
	geoChecks(c, s, add)

	if risk > maxRisk {
		risk = maxRisk
	}
	res.RiskScore = risk
	res.NextAction = ActionNormal
	if risk >= EscalateThreshold {
		res.NextAction = ActionEscalate
	}
	for _, f := range res.Flags {
		if f.Escalates() {
			res.NextAction = ActionEscalate
		}
	}

	e.logger.Debug("policy evaluated",
		"expense_id", c.ExpenseID,
		"risk_score", res.RiskScore,
		"flags", res.FlagStrings(),
		"next_action", res.NextAction,
		"degraded", res.Degraded)
	return res
}

func (e *Evaluator) duplicateChecks(ctx context.Context, c Candidate, s *site.Site, lookup Lookup, res *Result) int {
	if lookup == nil {
		return 0
	}
	risk := 0

	if res.ReceiptHash != "" {
		dup, err := lookup.ReceiptHashExists(ctx, res.ReceiptHash, c.ExpenseID)
		if err != nil {
			e.degrade(c, res, err)
			return risk
		}
		if dup {
			res.Flags = append(res.Flags, FlagDuplicateReceipt)
			risk += riskDuplicateReceipt
		}
	}

	window := s.Policy.DuplicateWindowDays
	day := truncateDay(c.ExpenseDate)
	from := day.AddDate(0, 0, -window)
	to := day.AddDate(0, 0, 1)

	dup, err := lookup.NormalizedKeyExists(ctx, c.SubmitterID, res.NormalizedKey, from, to, c.ExpenseID)
	if err != nil {
		e.degrade(c, res, err)
		return risk
	}
	if dup {
		res.Flags = append(res.Flags, FlagSoftDuplicate)
		risk += riskSoftDuplicate
	}
	return risk
}

func (e *Evaluator) degrade(c Candidate, res *Result, err error) {
	res.Degraded = true
	res.Flags = append(res.Flags, FlagLookupUnavailable)
	e.logger.Warn("duplicate lookup failed, continuing without it", "expense_id", c.ExpenseID, "error", err)
}

func ruleChecks(c Candidate, s *site.Site, add func(Flag, int)) {
	p := s.Policy
	name := string(c.Category)

	if limit, ok := p.CategoryLimit(name); ok && c.Amount.GreaterThan(limit) {
		add(OverLimitFlag(c.Category), riskOverLimit)
	}
	if p.CashMax != nil && strings.EqualFold(c.PaymentMethod, PaymentMethodCash) && c.Amount.GreaterThan(*p.CashMax) {
		add(FlagCashOverCap, riskCashOverCap)
	}
	if isWeekend(c.ExpenseDate) && p.WeekendDisallowedFor(name) {
		add(FlagSuspect, riskWeekend)
	}
	if p.GlobalMax != nil && c.Amount.GreaterThan(*p.GlobalMax) {
		add(FlagSuspect, riskOverGlobalMax)
	}
	if threshold, ok := p.DirectorThreshold(name); ok && c.Amount.GreaterThan(threshold) {
		add(FlagDirectorEscalation, 0)
	}
}

func geoChecks(c Candidate, s *site.Site, add func(Flag, int)) {
	if c.Location == nil || c.Category != category.Travel {
		return
	}
	loc := c.Location

	if loc.City != "" && s.City != "" && !strings.EqualFold(strings.TrimSpace(loc.City), strings.TrimSpace(s.City)) {
		add(FlagGeoCityMismatch, riskGeoCity)
	}
	if loc.Latitude != nil && loc.Longitude != nil && s.HasCoordinates() {
		if haversineKM(*loc.Latitude, *loc.Longitude, *s.Latitude, *s.Longitude) > geoToleranceKM {
			add(FlagGeoDistance, riskGeoDistance)
		}
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

const earthRadiusKM = 6371.0

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
