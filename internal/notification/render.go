package notification

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Renderer formats amounts and message text for one locale.
type Renderer struct {
	printer *message.Printer
}

func NewRenderer(tag language.Tag) *Renderer {
	return &Renderer{printer: message.NewPrinter(tag)}
}

// Amount renders "IDR 8,000.00" style strings, grouped per locale.
func (r *Renderer) Amount(amount decimal.Decimal, code string) string {
	if unit, err := currency.ParseISO(code); err == nil {
		code = unit.String()
	} else {
		code = strings.ToUpper(code)
	}
	return r.printer.Sprintf("%s %v", code, number.Decimal(amount.InexactFloat64(), number.Scale(2)))
}

func (r *Renderer) Number(v decimal.Decimal) string {
	return r.printer.Sprintf("%v", number.Decimal(v.InexactFloat64(), number.Scale(2)))
}

func (r *Renderer) Sprintf(format string, args ...interface{}) string {
	return r.printer.Sprintf(format, args...)
}
