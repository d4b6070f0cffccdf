package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Format renders an amount with two decimals and comma thousands
// separators, e.g. 130000 -> "130,000.00".
func Format(amount decimal.Decimal) string {
	raw := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign, raw = "-", raw[1:]
	}
	whole, frac, _ := strings.Cut(raw, ".")
	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return sign + b.String() + "." + frac
}
