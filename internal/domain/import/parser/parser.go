// Package parser turns uploaded spreadsheets (xlsx or CSV) into header-keyed
// rows. Reading is split in two stages: ReadWorkbook decodes bytes into cell
// grids, ExtractSheet finds the header row and aligns data rows to it.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// EmptyColumnMarker prefixes header names that stand for unnamed columns.
// Such columns are never exposed in a ParsedSheet.
const EmptyColumnMarker = "__EMPTY"

var (
	ErrEmptyWorkbook    = errors.New("workbook has no sheet with data")
	ErrNoHeadersFound   = errors.New("could not find header row")
	ErrNoDataRows       = errors.New("no data rows found after header row")
	ErrInsufficientRows = errors.New("file has fewer rows than the header row index")
	ErrUnreadableFile   = errors.New("file could not be read as xlsx or CSV")
)

// ParseError is returned for file-level failures. Kind is one of the package
// sentinels and can be matched with errors.Is.
type ParseError struct {
	Kind      error
	FileName  string
	HeaderRow int // -1 when the failure is unrelated to a header row
	Detail    string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.HeaderRow >= 0 {
		fmt.Fprintf(&b, " (header row index %d)", e.HeaderRow)
	}
	if e.FileName != "" {
		fmt.Fprintf(&b, " in %q", e.FileName)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

func newParseError(kind error, fileName string, headerRow int, detail string) *ParseError {
	return &ParseError{Kind: kind, FileName: fileName, HeaderRow: headerRow, Detail: detail}
}

// Row is a data row keyed by column name.
type Row map[string]string

// Clone returns a copy that can be modified without touching r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ParsedSheet is the extracted content of one sheet. Every row holds a value
// (possibly "") for every entry of Columns.
type ParsedSheet struct {
	Columns  []string `json:"columns"`
	Rows     []Row    `json:"rows"`
	RowCount int      `json:"rowCount"`

	// HeaderRowIndex is the header row actually used, after fallbacks.
	HeaderRowIndex int `json:"headerRowIndex"`
	// SkippedRows counts blank rows dropped below the header.
	SkippedRows int `json:"skippedRows"`
}

// ParseFile decodes data and extracts the first sheet using the header row at
// headerRowIndex (0-based).
func ParseFile(data []byte, fileName string, headerRowIndex int, logger *slog.Logger) (*ParsedSheet, error) {
	wb, err := ReadWorkbook(data, fileName)
	if err != nil {
		return nil, err
	}
	sheet, err := wb.FirstSheet()
	if err != nil {
		return nil, err
	}
	return ExtractSheet(sheet, headerRowIndex, WithFileName(fileName), WithLogger(logger))
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
