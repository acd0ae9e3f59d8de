package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// xlsxBytes builds an in-memory workbook with cells on Sheet1.
func xlsxBytes(t *testing.T, cells map[string]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	for ref, v := range cells {
		require.NoError(t, f.SetCellValue("Sheet1", ref, v))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseFile_CSV(t *testing.T) {
	t.Run("parses standard CSV", func(t *testing.T) {
		data := "Date,Amount,Method\n2024-01-15,100.00,Card\n2024-01-16,\"1,200.50\",Cash\n"

		sheet, err := ParseFile([]byte(data), "deposits.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Amount", "Method"}, sheet.Columns)
		assert.Equal(t, 2, sheet.RowCount)
		assert.Len(t, sheet.Rows, 2)
		assert.Equal(t, "1,200.50", sheet.Rows[1]["Amount"])
		assert.Equal(t, "Cash", sheet.Rows[1]["Method"])
	})

	t.Run("semicolon delimited with european amounts", func(t *testing.T) {
		data := "Data;Valor;Metodo\n15/01/2024;1.234,56;MB Way\n16/01/2024;10,00;Multibanco\n"

		sheet, err := ParseFile([]byte(data), "extrato.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Data", "Valor", "Metodo"}, sheet.Columns)
		assert.Equal(t, "1.234,56", sheet.Rows[0]["Valor"])
	})

	t.Run("header row below a preamble", func(t *testing.T) {
		data := "Settlement report\nGenerated today\nDate,Amount\n2024-01-15,5\n"

		sheet, err := ParseFile([]byte(data), "report.csv", 2, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Amount"}, sheet.Columns)
		require.Len(t, sheet.Rows, 1)
		assert.Equal(t, "5", sheet.Rows[0]["Amount"])
		assert.Equal(t, 2, sheet.HeaderRowIndex)
	})

	t.Run("blank lines keep their sheet row", func(t *testing.T) {
		data := "Settlement report\n\nMethod,Gross\nCard,10\nCash,5\n"

		sheet, err := ParseFile([]byte(data), "s.csv", 2, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Method", "Gross"}, sheet.Columns)
		require.Len(t, sheet.Rows, 2)
		assert.Equal(t, "Card", sheet.Rows[0]["Method"])
		assert.Equal(t, "5", sheet.Rows[1]["Gross"])
	})

	t.Run("blank line between data rows is skipped", func(t *testing.T) {
		data := "\nMethod,Gross\nCard,10\n\nCash,5\n"

		sheet, err := ParseFile([]byte(data), "s.csv", 1, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Method", "Gross"}, sheet.Columns)
		assert.Equal(t, 2, sheet.RowCount)
		assert.Equal(t, 1, sheet.SkippedRows)
	})

	t.Run("multi-line quoted cells span one sheet row", func(t *testing.T) {
		data := "Note,Amount\n\"two\nlines\",1\n\nTotal,Amount\nall,3\n"

		wb, err := ReadWorkbook([]byte(data), "notes.csv")
		require.NoError(t, err)
		sheet, err := wb.FirstSheet()
		require.NoError(t, err)

		assert.Equal(t, 5, sheet.RowCount())
		assert.Equal(t, "two\nlines", sheet.Value(1, 0))
		assert.Equal(t, "", sheet.Value(2, 0))
		assert.Equal(t, "Total", sheet.Value(3, 0))
	})

	t.Run("values are kept verbatim", func(t *testing.T) {
		data := "Name,Amount\n  padded  , 384- \n"

		sheet, err := ParseFile([]byte(data), "x.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, "  padded  ", sheet.Rows[0]["Name"])
		assert.Equal(t, " 384- ", sheet.Rows[0]["Amount"])
	})

	t.Run("ragged rows get empty values for every column", func(t *testing.T) {
		data := "A,B,C\n1\n1,2,3\n"

		sheet, err := ParseFile([]byte(data), "x.csv", 0, nil)

		require.NoError(t, err)
		require.Len(t, sheet.Rows, 2)
		for _, row := range sheet.Rows {
			for _, c := range sheet.Columns {
				_, ok := row[c]
				assert.True(t, ok, "missing column %s", c)
			}
		}
		assert.Equal(t, "", sheet.Rows[0]["C"])
	})
}

func TestExtractSheet_Headers(t *testing.T) {
	t.Run("blank header cells are labeled by position", func(t *testing.T) {
		sheet, err := ParseFile([]byte("Date,,Amount\n2024-01-01,x,2\n"), "x.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Column 2", "Amount"}, sheet.Columns)
		assert.Equal(t, "x", sheet.Rows[0]["Column 2"])
	})

	t.Run("duplicate headers are suffixed", func(t *testing.T) {
		sheet, err := ParseFile([]byte("Amount,Amount,Amount\n1,2,3\n"), "x.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Amount", "Amount_1", "Amount_2"}, sheet.Columns)
		assert.Equal(t, "3", sheet.Rows[0]["Amount_2"])
	})

	t.Run("header names are trimmed", func(t *testing.T) {
		sheet, err := ParseFile([]byte(" Date , Amount \n1,2\n"), "x.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Amount"}, sheet.Columns)
	})

	t.Run("reserved empty-column headers are not exposed", func(t *testing.T) {
		sheet, err := ParseFile([]byte("Date,__EMPTY,Amount\n1,hidden,2\n"), "x.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Amount"}, sheet.Columns)
		assert.Equal(t, "2", sheet.Rows[0]["Amount"])
		_, ok := sheet.Rows[0]["__EMPTY"]
		assert.False(t, ok)
	})

	t.Run("only reserved headers fails", func(t *testing.T) {
		_, err := ParseFile([]byte("__EMPTY,__EMPTY_1\n1,2\n"), "x.csv", 0, nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoHeadersFound))
	})

	t.Run("out of range header index falls back to row 0", func(t *testing.T) {
		sheet, err := ParseFile([]byte("Date,Amount\n1,2\n"), "x.csv", 40, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, sheet.HeaderRowIndex)
		assert.Equal(t, []string{"Date", "Amount"}, sheet.Columns)
	})

	t.Run("negative header index is treated as 0", func(t *testing.T) {
		sheet, err := ParseFile([]byte("Date,Amount\n1,2\n"), "x.csv", -3, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, sheet.HeaderRowIndex)
	})

	t.Run("blank header row retries at row 0", func(t *testing.T) {
		sheet, err := ParseFile([]byte("Date,Amount\n,\n1,2\n"), "x.csv", 1, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, sheet.HeaderRowIndex)
		assert.Equal(t, []string{"Date", "Amount"}, sheet.Columns)
		assert.Equal(t, 1, sheet.RowCount)
		assert.Equal(t, 1, sheet.SkippedRows)
	})

	t.Run("no header text synthesizes names for every column", func(t *testing.T) {
		sheet, err := ParseFile([]byte(",,\n1,2,3\n"), "x.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Column 1", "Column 2", "Column 3"}, sheet.Columns)
		assert.Equal(t, "3", sheet.Rows[0]["Column 3"])
	})
}

func TestExtractSheet_Rows(t *testing.T) {
	t.Run("blank and whitespace rows are dropped", func(t *testing.T) {
		data := "Date,Amount\n1,2\n,\n  ,  \n3,4\n"

		sheet, err := ParseFile([]byte(data), "x.csv", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, 2, sheet.RowCount)
		assert.Equal(t, 2, sheet.SkippedRows)
		assert.Equal(t, "3", sheet.Rows[1]["Date"])
	})

	t.Run("header without data rows fails with the header index", func(t *testing.T) {
		_, err := ParseFile([]byte("Preamble\nDate,Amount\n"), "deposits.csv", 1, nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoDataRows))

		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr))
		assert.Equal(t, 1, parseErr.HeaderRow)
		assert.Equal(t, "deposits.csv", parseErr.FileName)
		assert.Contains(t, err.Error(), "header row index 1")
		assert.Contains(t, err.Error(), "deposits.csv")
	})
}

func TestParseFile_UnreadableFile(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		fileName string
	}{
		{"corrupt xlsx", "not a zip", "bad.xlsx"},
		{"legacy xls", "\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1", "old.xls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.data), tt.fileName, 0, nil)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnreadableFile))
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Contains(t, err.Error(), tt.fileName)
		})
	}
}

func TestParseFile_Excel(t *testing.T) {
	t.Run("leading gutter columns are skipped for the whole sheet", func(t *testing.T) {
		data := xlsxBytes(t, map[string]any{
			"C1": "Date", "D1": "Amount",
			"A2": "ignored", "B2": "also ignored", "C2": "2024-01-01", "D2": 10,
			"C3": "2024-01-02", "D3": 20.5,
		})

		sheet, err := ParseFile(data, "deposits.xlsx", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Amount"}, sheet.Columns)
		require.Len(t, sheet.Rows, 2)
		assert.Equal(t, Row{"Date": "2024-01-01", "Amount": "10"}, sheet.Rows[0])
		assert.Equal(t, "20.5", sheet.Rows[1]["Amount"])
	})

	t.Run("boolean cells render as TRUE/FALSE", func(t *testing.T) {
		data := xlsxBytes(t, map[string]any{
			"A1": "Settled", "B1": "Amount",
			"A2": true, "B2": 5,
			"A3": false, "B3": 6,
		})

		sheet, err := ParseFile(data, "deposits.xlsx", 0, nil)

		require.NoError(t, err)
		assert.Equal(t, "TRUE", sheet.Rows[0]["Settled"])
		assert.Equal(t, "FALSE", sheet.Rows[1]["Settled"])
	})

	t.Run("header row index selects the title row", func(t *testing.T) {
		data := xlsxBytes(t, map[string]any{
			"A1": "Monthly deposits",
			"A3": "Method", "B3": "Gross",
			"A4": "Visa", "B4": 100,
		})

		sheet, err := ParseFile(data, "deposits.xlsx", 2, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"Method", "Gross"}, sheet.Columns)
		assert.Equal(t, Row{"Method": "Visa", "Gross": "100"}, sheet.Rows[0])
	})

	t.Run("empty first sheet fails", func(t *testing.T) {
		data := xlsxBytes(t, nil)

		_, err := ParseFile(data, "empty.xlsx", 0, nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyWorkbook))
	})

	t.Run("corrupt container fails", func(t *testing.T) {
		_, err := ParseFile([]byte("definitely not a zip"), "broken.xlsx", 0, nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken.xlsx")
	})
}

func TestReadWorkbook(t *testing.T) {
	t.Run("empty CSV has an empty first sheet", func(t *testing.T) {
		wb, err := ReadWorkbook(nil, "empty.csv")
		require.NoError(t, err)

		_, err = wb.FirstSheet()
		assert.True(t, errors.Is(err, ErrEmptyWorkbook))
	})

	t.Run("occupied range", func(t *testing.T) {
		wb, err := ReadWorkbook([]byte(",,\n,a,b\n,c,\n"), "x.csv")
		require.NoError(t, err)

		sheet, err := wb.FirstSheet()
		require.NoError(t, err)
		assert.Equal(t, Range{StartRow: 1, StartCol: 1, EndRow: 2, EndCol: 2}, sheet.Range)
	})

	t.Run("workbook without sheets", func(t *testing.T) {
		wb := &Workbook{FileName: "none.xlsx"}
		_, err := wb.FirstSheet()
		assert.True(t, errors.Is(err, ErrEmptyWorkbook))
	})
}

func TestCell_String(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{"bool prefers display text", Cell{Raw: "1", Formatted: "TRUE", Type: CellTypeBool}, "TRUE"},
		{"number prefers raw", Cell{Raw: "1234.5", Formatted: "$1,234.50", Type: CellTypeNumber}, "1234.5"},
		{"falls back to formatted", Cell{Formatted: "text"}, "text"},
		{"empty", Cell{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cell.String())
		})
	}
}
