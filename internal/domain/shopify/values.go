package shopify

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
)

const isoDate = "2006-01-02"

// usDate is Shopify's M/D/YYYY export format.
const usDate = "1/2/2006"

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon, 2 Jan 2006",
}

// maxExcelSerial is the serial of 9999-12-31, the last date Excel stores.
const maxExcelSerial = 2958465

// NormalizeDate returns value as an ISO date. ISO input is returned as is,
// M/D/YYYY is read month first, Excel date serials from xlsx exports are
// converted, and a few common layouts are tried before giving up with "".
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if _, err := time.Parse(isoDate, value); err == nil {
		return value
	}
	if t, err := time.Parse(usDate, value); err == nil {
		return t.Format(isoDate)
	}
	if t, ok := excelSerialDate(value); ok {
		return t.Format(isoDate)
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(isoDate)
		}
	}
	return ""
}

// excelSerialDate reads the raw value of a date-formatted xlsx cell, e.g.
// "45355" or "45355.5" (noon).
func excelSerialDate(value string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil || serial < 1 || serial > maxExcelSerial+1 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseAmount reads a payment amount such as "$1,234.50", "(12.00)" or
// "-€3". Currency symbols, commas and whitespace are ignored; anything that
// still fails to parse is 0.
func ParseAmount(value string) float64 {
	var b strings.Builder
	for _, r := range value {
		if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()

	negative := false
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.Abs(v) > maxAmount {
		return 0
	}
	if negative {
		v = -v
	}
	return v
}

const maxAmount = 1e15
