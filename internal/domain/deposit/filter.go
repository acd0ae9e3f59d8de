package deposit

import (
	"strings"

	"github.com/FACorreiaa/deposit-recon/internal/domain/import/parser"
)

// FilterRowsByColumn keeps the rows whose trimmed value in column is one of
// allowed. An empty column disables filtering and returns rows itself; an
// empty allow-list keeps nothing.
func FilterRowsByColumn(rows []parser.Row, column string, allowed []string) []parser.Row {
	if column == "" {
		return rows
	}
	if len(allowed) == 0 {
		return []parser.Row{}
	}

	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}

	out := make([]parser.Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := set[strings.TrimSpace(row[column])]; ok {
			out = append(out, row)
		}
	}
	return out
}
