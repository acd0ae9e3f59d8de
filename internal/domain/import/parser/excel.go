package parser

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readExcel opens an xlsx container and loads every sheet. Each sheet is
// read twice, once with number formats applied and once raw, so cells keep
// both representations.
func readExcel(data []byte, fileName string) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, newParseError(ErrUnreadableFile, fileName, -1, err.Error())
	}
	defer f.Close()

	wb := &Workbook{
		FileName:   fileName,
		SheetNames: f.GetSheetList(),
		Sheets:     make(map[string]*Sheet),
	}

	for _, name := range wb.SheetNames {
		cells, err := readExcelSheet(f, name)
		if err != nil {
			return nil, newParseError(ErrUnreadableFile, fileName, -1, fmt.Sprintf("sheet %q: %v", name, err))
		}
		wb.Sheets[name] = newSheet(name, cells)
	}

	return wb, nil
}

func readExcelSheet(f *excelize.File, sheet string) ([][]Cell, error) {
	formatted, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	rowCount := max(len(formatted), len(raw))
	cells := make([][]Cell, rowCount)
	for r := 0; r < rowCount; r++ {
		fRow := rowAt(formatted, r)
		rRow := rowAt(raw, r)

		row := make([]Cell, max(len(fRow), len(rRow)))
		for c := range row {
			cell := Cell{Formatted: valueAt(fRow, c), Raw: valueAt(rRow, c)}
			if cell.Formatted != "" || cell.Raw != "" {
				cell.Type = excelCellType(f, sheet, r, c)
			}
			row[c] = cell
		}
		cells[r] = row
	}
	return cells, nil
}

func excelCellType(f *excelize.File, sheet string, row, col int) CellType {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return CellTypeUnset
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return CellTypeUnset
	}

	switch typ {
	case excelize.CellTypeBool:
		return CellTypeBool
	case excelize.CellTypeNumber:
		return CellTypeNumber
	case excelize.CellTypeDate:
		return CellTypeDate
	case excelize.CellTypeFormula:
		return CellTypeFormula
	case excelize.CellTypeError:
		return CellTypeError
	case excelize.CellTypeInlineString, excelize.CellTypeSharedString:
		return CellTypeString
	default:
		return CellTypeUnset
	}
}

func rowAt(rows [][]string, i int) []string {
	if i < len(rows) {
		return rows[i]
	}
	return nil
}

func valueAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
