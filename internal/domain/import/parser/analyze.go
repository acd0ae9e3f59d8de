package parser

import (
	"sort"
	"strconv"
	"strings"
)

// A column is numeric when numericPercent of at most numericSampleSize
// non-empty samples parse.
const (
	numericSampleSize = 10
	numericPercent    = 70
)

// DistinctValues returns the sorted set of trimmed, non-empty values of
// column. It feeds the allow-list checkboxes of the row filter.
func DistinctValues(rows []Row, column string) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		v := strings.TrimSpace(row[column])
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// IsNumericColumn samples the first rows of column and reports whether at
// least 70% of the non-empty samples parse as plain floats. Locale-formatted
// values such as "1.234,56" do not count.
func IsNumericColumn(rows []Row, column string) bool {
	sampled, numeric := 0, 0
	for i, row := range rows {
		if i >= numericSampleSize {
			break
		}
		v := strings.TrimSpace(row[column])
		if v == "" {
			continue
		}
		sampled++
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numeric++
		}
	}
	if sampled == 0 {
		return false
	}
	return numeric*100 >= sampled*numericPercent
}

// NumericColumns lists the columns of sheet that IsNumericColumn accepts, in
// column order.
func NumericColumns(sheet *ParsedSheet) []string {
	var out []string
	for _, c := range sheet.Columns {
		if IsNumericColumn(sheet.Rows, c) {
			out = append(out, c)
		}
	}
	return out
}
