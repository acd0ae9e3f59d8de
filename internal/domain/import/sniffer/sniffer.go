// Package sniffer detects how an uploaded CSV file is encoded and delimited,
// and suggests which columns of a parsed sheet hold deposit amounts.
package sniffer

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/encoding/charmap"
)

// maxSampleLines bounds how many lines are inspected for the delimiter.
const maxSampleLines = 20

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// NormalizeBytes strips a UTF-8 BOM and decodes non-UTF-8 input as
// Windows-1252, which is what spreadsheet tools on Windows export.
func NormalizeBytes(data []byte) []byte {
	data = stripUTF8BOM(data)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

func stripUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// DetectDelimiter picks the delimiter that splits the leading lines most
// consistently. Quoted sections are ignored. Comma is returned when nothing
// better is found.
func DetectDelimiter(data []byte) rune {
	lines := strings.Split(string(data), "\n")

	best := ','
	bestScore := 0
	for _, d := range candidateDelimiters {
		score := delimiterScore(lines, d)
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

// delimiterScore rewards delimiters that split many sampled lines into the
// same number of fields. Preamble lines ("Report generated ...") rarely agree
// with the table body and so contribute nothing.
func delimiterScore(lines []string, d rune) int {
	frequency := make(map[int]int)
	sampled := 0
	for _, line := range lines {
		if sampled >= maxSampleLines {
			break
		}
		line = cleanLine(line)
		if line == "" {
			continue
		}
		sampled++

		if count := countOutsideQuotes(line, d); count > 0 {
			frequency[count]++
		}
	}

	best := 0
	for count, n := range frequency {
		if n > 1 || len(frequency) == 1 {
			best = max(best, count*n)
		}
	}
	return best
}

func cleanLine(line string) string {
	return strings.TrimSpace(strings.TrimRight(line, "\r"))
}

func countOutsideQuotes(line string, d rune) int {
	inQuotes := false
	count := 0
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			count++
		}
	}
	return count
}

// DepositSuggestions holds header names that look like deposit columns.
// Empty fields mean no confident match.
type DepositSuggestions struct {
	AmountColumn string `json:"amountColumn,omitempty"`
	RefundColumn string `json:"refundColumn,omitempty"`
	TaxColumn    string `json:"taxColumn,omitempty"`
	FilterColumn string `json:"filterColumn,omitempty"`
}

var (
	refundKeywords = []string{"refund", "refunded", "return", "chargeback", "reembolso", "devolução"}
	taxKeywords    = []string{"tax", "vat", "gst", "iva", "imposto"}
	filterKeywords = []string{"payment method", "payment type", "gateway", "card type", "tender", "method", "type"}
	amountKeywords = []string{"gross", "amount", "total", "sales", "valor", "importe", "montant", "net"}
)

// SuggestDepositColumns matches headers against deposit vocabularies.
// Substring hits win over fuzzy subsequence hits; a header is assigned to at
// most one field. Refund and tax are resolved before amount so that
// "Refund amount" does not become the amount column.
func SuggestDepositColumns(headers []string) *DepositSuggestions {
	taken := make(map[string]bool)
	pick := func(keywords []string) string {
		match := bestMatch(headers, keywords, taken)
		if match != "" {
			taken[match] = true
		}
		return match
	}

	s := &DepositSuggestions{}
	s.RefundColumn = pick(refundKeywords)
	s.TaxColumn = pick(taxKeywords)
	s.FilterColumn = pick(filterKeywords)
	s.AmountColumn = pick(amountKeywords)
	return s
}

type candidate struct {
	header   string
	priority int // keyword position, lower wins
	distance int
	exact    bool
	index    int
}

func bestMatch(headers []string, keywords []string, taken map[string]bool) string {
	available := make([]string, 0, len(headers))
	for _, h := range headers {
		if !taken[h] && strings.TrimSpace(h) != "" {
			available = append(available, h)
		}
	}
	if len(available) == 0 {
		return ""
	}

	var candidates []candidate
	for p, kw := range keywords {
		for i, h := range available {
			if strings.Contains(strings.ToLower(h), kw) {
				candidates = append(candidates, candidate{header: h, priority: p, distance: len(h) - len(kw), exact: true, index: i})
			}
		}
		for _, rank := range fuzzy.RankFindNormalizedFold(kw, available) {
			candidates = append(candidates, candidate{header: rank.Target, priority: p, distance: rank.Distance, index: rank.OriginalIndex})
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.index < b.index
	})

	best := candidates[0]
	// Loose subsequence matches ("tax" inside "Transaction ID" etc.) are only
	// accepted when the header is short relative to the keyword.
	if !best.exact && best.distance > 2*len(keywords[best.priority]) {
		return ""
	}
	return best.header
}
