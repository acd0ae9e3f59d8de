// Package money provides locale-tolerant amount parsing and the decimal
// rounding used for deposit totals. Amounts travel as float64 at the API
// boundary; every sum and rounding step goes through shopspring/decimal.
package money

import (
	"math"
	"strconv"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	BRL = "BRL"
	CAD = "CAD"
)

// ParseNumberWithCommas converts a number written with either US (1,234.56)
// or European (1.234,56) separators. A minus sign may lead or trail the
// digits ("384-"). It returns NaN when the value cannot be read as a number;
// callers decide how to degrade.
func ParseNumberWithCommas(value string) float64 {
	s := strings.Join(strings.Fields(value), "")
	if s == "" {
		return math.NaN()
	}

	negative := false
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var normalized string
	switch {
	case dots == 1 && commas == 0:
		normalized = s
	case commas == 1 && dots == 0:
		if isThousandsGroup(s, lastComma) {
			normalized = strings.Replace(s, ",", "", 1)
		} else {
			normalized = strings.Replace(s, ",", ".", 1)
		}
	case dots == 1 && commas >= 1 && lastDot > lastComma:
		// 1,234,567.89
		normalized = strings.ReplaceAll(s, ",", "")
	case commas == 1 && dots >= 1 && lastComma > lastDot:
		// 1.234.567,89
		normalized = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case dots > 1 && commas == 0:
		// 1.234.567 is read as dot grouping (1234567). Plain comma stripping
		// would leave an unparseable "1.234.567", so this case is an
		// intentional extension of the comma rules.
		normalized = strings.ReplaceAll(s, ".", "")
	default:
		normalized = strings.ReplaceAll(s, ",", "")
	}

	v, ok := parseStrict(normalized)
	if !ok {
		return math.NaN()
	}
	if negative {
		return -v
	}
	return v
}

// isThousandsGroup reports whether a lone comma at idx separates a group of
// exactly three digits from a non-zero leading group ("1,234" but not "0,125"
// or "12,5").
func isThousandsGroup(s string, idx int) bool {
	head, tail := s[:idx], s[idx+1:]
	if len(tail) != 3 || len(head) == 0 || len(head) > 3 || head[0] == '0' {
		return false
	}
	return allDigits(head) && allDigits(tail)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// parseStrict accepts plain decimal notation with an optional exponent.
func parseStrict(s string) (float64, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != 'e' && r != 'E' && r != '+' && r != '-' {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatWithCommas renders v with US thousands grouping and the shortest
// fraction that round-trips ("1,234.5", "-50"). Non-finite values render as "".
func FormatWithCommas(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}

	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

var half = decimal.New(5, -1)

// RoundCents rounds d to two decimal places, half up: ties go toward positive
// infinity, so 0.125 becomes 0.13 and -0.125 becomes -0.12.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Shift(2).Add(half).Floor().Shift(-2)
}

// Round2 is RoundCents for floats. NaN and infinities are returned as is.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return RoundCents(decimal.NewFromFloat(v)).InexactFloat64()
}

// Sum adds values with decimal precision so that the result does not depend
// on float accumulation order.
func Sum(values ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total
}

// Display formats an amount for humans in the given currency, e.g. "$1,234.56".
// Unknown currency codes fall back to USD.
func Display(amount float64, currencyCode string) string {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	currency := gomoney.GetCurrency(code)
	if currency == nil {
		code = USD
		currency = gomoney.GetCurrency(USD)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	minor := decimal.NewFromFloat(amount).Mul(multiplier).Round(0).IntPart()
	return gomoney.New(minor, code).Display()
}
