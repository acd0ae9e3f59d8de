package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type extractConfig struct {
	fileName string
	logger   *slog.Logger
}

// ExtractOption configures ExtractSheet.
type ExtractOption func(*extractConfig)

// WithFileName names the source file in errors and logs.
func WithFileName(name string) ExtractOption {
	return func(c *extractConfig) { c.fileName = name }
}

// WithLogger sets the diagnostics sink. A nil logger discards output.
func WithLogger(logger *slog.Logger) ExtractOption {
	return func(c *extractConfig) { c.logger = logger }
}

// ExtractSheet locates the header row of sheet and reads the data rows below
// it. Columns are aligned by position: the first non-empty header cell fixes
// the start column for the whole sheet, so a blank leading gutter is ignored.
//
// An out-of-range header index falls back to row 0. If the requested row has
// no header text, row 0 is tried, and then every occupied column is named
// "Column n". A header with no surviving data rows below it fails with
// ErrNoDataRows.
func ExtractSheet(sheet *Sheet, headerRowIndex int, opts ...ExtractOption) (*ParsedSheet, error) {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := loggerOrDiscard(cfg.logger).With(slog.String("file", cfg.fileName), slog.String("sheet", sheet.Name))

	if sheet.Empty {
		return nil, newParseError(ErrEmptyWorkbook, cfg.fileName, -1, fmt.Sprintf("sheet %q is empty", sheet.Name))
	}
	rng := sheet.Range

	if headerRowIndex < 0 {
		headerRowIndex = 0
	}
	if headerRowIndex > rng.EndRow {
		logger.Warn("header row index outside sheet range, using row 0",
			slog.Int("requested", headerRowIndex),
			slog.Int("last_row", rng.EndRow),
		)
		headerRowIndex = 0
	}

	startCol, headers := scanHeaders(sheet, headerRowIndex)
	if len(headers) == 0 && headerRowIndex != 0 {
		logger.Warn("header row is blank, retrying at row 0", slog.Int("requested", headerRowIndex))
		headerRowIndex = 0
		startCol, headers = scanHeaders(sheet, 0)
	}
	if len(headers) == 0 {
		startCol = rng.StartCol
		for c := rng.StartCol; c <= rng.EndCol; c++ {
			headers = append(headers, columnLabel(c-rng.StartCol+1))
		}
		logger.Debug("no header text found, synthesized column names", slog.Int("columns", len(headers)))
	}
	headers = dedupeHeaders(headers)

	visible := make([]int, 0, len(headers))
	columns := make([]string, 0, len(headers))
	for i, h := range headers {
		if strings.HasPrefix(h, EmptyColumnMarker) {
			continue
		}
		visible = append(visible, i)
		columns = append(columns, h)
	}
	if len(columns) == 0 {
		return nil, newParseError(ErrNoHeadersFound, cfg.fileName, headerRowIndex, "")
	}

	result := &ParsedSheet{
		Columns:        columns,
		Rows:           make([]Row, 0, max(rng.EndRow-headerRowIndex, 0)),
		HeaderRowIndex: headerRowIndex,
	}

	values := make([]string, len(headers))
	for r := headerRowIndex + 1; r <= rng.EndRow; r++ {
		blank := true
		for i := range headers {
			values[i] = sheet.Value(r, startCol+i)
			if strings.TrimSpace(values[i]) != "" {
				blank = false
			}
		}
		if blank {
			result.SkippedRows++
			continue
		}

		row := make(Row, len(visible))
		for _, i := range visible {
			row[headers[i]] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}

	if len(result.Rows) == 0 {
		return nil, newParseError(ErrNoDataRows, cfg.fileName, headerRowIndex,
			"check that the header row setting points at the column titles")
	}
	result.RowCount = len(result.Rows)

	logger.Debug("sheet extracted",
		slog.Int("header_row", headerRowIndex),
		slog.Int("start_col", startCol),
		slog.Int("columns", len(columns)),
		slog.Int("rows", result.RowCount),
		slog.Int("skipped", result.SkippedRows),
	)
	return result, nil
}

// scanHeaders returns the first non-empty column of row and the header names
// from there to the end of the range. Blank cells become "Column n".
func scanHeaders(sheet *Sheet, row int) (int, []string) {
	rng := sheet.Range
	start := -1
	for c := rng.StartCol; c <= rng.EndCol; c++ {
		if strings.TrimSpace(sheet.Value(row, c)) != "" {
			start = c
			break
		}
	}
	if start < 0 {
		return 0, nil
	}

	headers := make([]string, 0, rng.EndCol-start+1)
	for c := start; c <= rng.EndCol; c++ {
		name := strings.TrimSpace(sheet.Value(row, c))
		if name == "" {
			name = columnLabel(c - start + 1)
		}
		headers = append(headers, name)
	}
	return start, headers
}

func columnLabel(n int) string {
	return "Column " + strconv.Itoa(n)
}

// dedupeHeaders suffixes repeated names with _1, _2, ... in order of
// appearance so that every column name is unique.
func dedupeHeaders(headers []string) []string {
	seen := make(map[string]bool, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		name := h
		for n := 1; seen[name]; n++ {
			name = h + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}
