package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/FACorreiaa/deposit-recon/internal/domain/import/sniffer"
)

// CellType tags what the decoder knew about a cell.
type CellType int

const (
	CellTypeUnset CellType = iota
	CellTypeString
	CellTypeNumber
	CellTypeBool
	CellTypeDate
	CellTypeFormula
	CellTypeError
)

// Cell keeps both the stored value and the text a spreadsheet would display.
type Cell struct {
	Raw       string
	Formatted string
	Type      CellType
}

// String coerces the cell: booleans use their display text (TRUE/FALSE),
// anything else prefers the raw value and falls back to the display text.
func (c Cell) String() string {
	if c.Type == CellTypeBool && c.Formatted != "" {
		return c.Formatted
	}
	if c.Raw != "" {
		return c.Raw
	}
	return c.Formatted
}

// Range is the occupied bounding box of a sheet, 0-based and inclusive.
type Range struct {
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// Sheet is a rectangular-ish grid of cells. Rows may be ragged; missing
// cells read as empty.
type Sheet struct {
	Name  string
	Cells [][]Cell
	Range Range
	// Empty is true when no cell holds a value; Range is meaningless then.
	Empty bool
}

// Value returns the coerced string at (row, col) or "" when out of bounds.
func (s *Sheet) Value(row, col int) string {
	if row < 0 || row >= len(s.Cells) {
		return ""
	}
	cells := s.Cells[row]
	if col < 0 || col >= len(cells) {
		return ""
	}
	return cells[col].String()
}

// RowCount is the number of grid rows, including leading blank ones.
func (s *Sheet) RowCount() int {
	return len(s.Cells)
}

func newSheet(name string, cells [][]Cell) *Sheet {
	s := &Sheet{Name: name, Cells: cells, Empty: true}
	for r, row := range cells {
		for c, cell := range row {
			if strings.TrimSpace(cell.String()) == "" {
				continue
			}
			if s.Empty {
				s.Range = Range{StartRow: r, StartCol: c, EndRow: r, EndCol: c}
				s.Empty = false
				continue
			}
			s.Range.StartRow = min(s.Range.StartRow, r)
			s.Range.StartCol = min(s.Range.StartCol, c)
			s.Range.EndRow = max(s.Range.EndRow, r)
			s.Range.EndCol = max(s.Range.EndCol, c)
		}
	}
	return s
}

// Workbook is a decoded upload. SheetNames keeps the file's sheet order.
type Workbook struct {
	FileName   string
	SheetNames []string
	Sheets     map[string]*Sheet
}

// FirstSheet returns the first sheet, failing when the workbook has no sheet
// or the first sheet holds no data.
func (w *Workbook) FirstSheet() (*Sheet, error) {
	if len(w.SheetNames) == 0 {
		return nil, newParseError(ErrEmptyWorkbook, w.FileName, -1, "no sheets")
	}
	sheet := w.Sheets[w.SheetNames[0]]
	if sheet == nil || sheet.Empty {
		return nil, newParseError(ErrEmptyWorkbook, w.FileName, -1, fmt.Sprintf("sheet %q is empty", w.SheetNames[0]))
	}
	return sheet, nil
}

// IsCSV reports whether fileName is decoded as delimited text.
func IsCSV(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".tsv", ".txt":
		return true
	}
	return false
}

// ReadWorkbook decodes data according to the extension of fileName. CSV
// text is kept verbatim; anything else is opened as a spreadsheet container.
func ReadWorkbook(data []byte, fileName string) (*Workbook, error) {
	if IsCSV(fileName) {
		return readCSV(data, fileName)
	}
	return readExcel(data, fileName)
}

// csvSheetName mirrors what spreadsheet tools call the only sheet of a CSV.
const csvSheetName = "Sheet1"

func readCSV(data []byte, fileName string) (*Workbook, error) {
	data = sniffer.NormalizeBytes(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffer.DetectDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	// encoding/csv drops blank lines; they are kept as empty rows so grid
	// indexes match the line a user sees in a spreadsheet tool.
	var cells [][]Cell
	nextLine := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newParseError(ErrUnreadableFile, fileName, -1, err.Error())
		}

		line, _ := reader.FieldPos(0)
		for ; nextLine < line; nextLine++ {
			cells = append(cells, nil)
		}
		cells = append(cells, csvRow(record))

		last := len(record) - 1
		endLine, _ := reader.FieldPos(last)
		nextLine = endLine + strings.Count(record[last], "\n") + 1
	}

	wb := &Workbook{
		FileName:   fileName,
		SheetNames: []string{csvSheetName},
		Sheets:     map[string]*Sheet{csvSheetName: newSheet(csvSheetName, cells)},
	}
	return wb, nil
}

func csvRow(record []string) []Cell {
	row := make([]Cell, len(record))
	for c, value := range record {
		typ := CellTypeString
		if value == "" {
			typ = CellTypeUnset
		}
		row[c] = Cell{Raw: value, Formatted: value, Type: typ}
	}
	return row
}
