package payment

import (
	"net/url"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
)

const dateLayout = "2006-01-02"

// ListFilter selects payments whose payment date falls in [From, To).
type ListFilter struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// ParseListFilter reads from/to (YYYY-MM-DD, to inclusive) from the query.
// Missing bounds default to the current UTC month.
func ParseListFilter(q url.Values, now time.Time) (ListFilter, error) {
	now = now.UTC()
	f := ListFilter{
		From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
	f.To = f.From.AddDate(0, 1, 0)

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, internal.NewValidationFieldError("from", "from must be a YYYY-MM-DD date", internal.ErrCodeInvalidDate)
		}
		f.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, internal.NewValidationFieldError("to", "to must be a YYYY-MM-DD date", internal.ErrCodeInvalidDate)
		}
		f.To = to.AddDate(0, 0, 1)
	}
	return f, f.Validate()
}

func (f ListFilter) Validate() error {
	v := validation.NewValidator()
	v.Field("from", f.From).Required()
	v.Field("to", f.To).Required()
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	if !f.From.Before(f.To) {
		return internal.NewValidationFieldError("to", "to must not be before from", internal.ErrCodeInvalidDate)
	}
	return nil
}
