// Package shopify maps a Shopify payments export onto typed sales rows and
// merges rows that describe the same order payment.
package shopify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/deposit-recon/internal/domain/import/parser"
)

// ImportRow is one Shopify transaction. Day is ISO YYYY-MM-DD or "" when the
// source date could not be read.
type ImportRow struct {
	TransactionID    string  `json:"transaction_id" csv:"transaction_id"`
	Day              string  `json:"day" csv:"day"`
	OrderName        string  `json:"order_name" csv:"order_name"`
	PaymentGateway   string  `json:"payment_gateway" csv:"payment_gateway"`
	POSLocationName  string  `json:"pos_location_name,omitempty" csv:"pos_location_name"`
	SalesChannel     string  `json:"sales_channel,omitempty" csv:"sales_channel"`
	GrossPayments    float64 `json:"gross_payments" csv:"gross_payments"`
	RefundedPayments float64 `json:"refunded_payments" csv:"refunded_payments"`
	NetPayments      float64 `json:"net_payments" csv:"net_payments"`
}

// Key is the grouping key day|order_name|payment_gateway.
func (r ImportRow) Key() string {
	return r.Day + "|" + r.OrderName + "|" + r.PaymentGateway
}

type field int

const (
	fieldTransactionID field = iota
	fieldDay
	fieldOrderName
	fieldPaymentGateway
	fieldPOSLocationName
	fieldSalesChannel
	fieldGrossPayments
	fieldRefundedPayments
	fieldNetPayments
)

// headerFields is the export vocabulary. Matching is exact on the trimmed
// header text; other headers are ignored.
var headerFields = map[string]field{
	"Transaction ID":    fieldTransactionID,
	"Day":               fieldDay,
	"Order name":        fieldOrderName,
	"Payment gateway":   fieldPaymentGateway,
	"POS location name": fieldPOSLocationName,
	"Sales channel":     fieldSalesChannel,
	"Gross payments":    fieldGrossPayments,
	"Refunded payments": fieldRefundedPayments,
	"Net payments":      fieldNetPayments,
}

// columnMap resolves each known field to the sheet column holding it.
type columnMap map[field]string

func resolveColumns(columns []string) columnMap {
	m := make(columnMap)
	for _, c := range columns {
		f, ok := headerFields[strings.TrimSpace(c)]
		if !ok {
			continue
		}
		if _, seen := m[f]; !seen {
			m[f] = c
		}
	}
	return m
}

func (m columnMap) value(row parser.Row, f field) string {
	column, ok := m[f]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[column])
}

// MapRows converts raw rows into ImportRows. Rows without an order name or a
// payment gateway are incomplete transactions and are dropped.
func MapRows(columns []string, rows []parser.Row, logger *slog.Logger) []ImportRow {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cols := resolveColumns(columns)

	out := make([]ImportRow, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		r := ImportRow{
			TransactionID:    cols.value(row, fieldTransactionID),
			Day:              NormalizeDate(cols.value(row, fieldDay)),
			OrderName:        cols.value(row, fieldOrderName),
			PaymentGateway:   cols.value(row, fieldPaymentGateway),
			POSLocationName:  cols.value(row, fieldPOSLocationName),
			SalesChannel:     cols.value(row, fieldSalesChannel),
			GrossPayments:    ParseAmount(cols.value(row, fieldGrossPayments)),
			RefundedPayments: ParseAmount(cols.value(row, fieldRefundedPayments)),
			NetPayments:      ParseAmount(cols.value(row, fieldNetPayments)),
		}
		if r.OrderName == "" || r.PaymentGateway == "" {
			dropped++
			continue
		}
		out = append(out, r)
	}

	if dropped > 0 {
		logger.Debug("dropped incomplete shopify rows", slog.Int("dropped", dropped))
	}
	return out
}

// ImportResult is a parsed Shopify export. RawRows keeps the header-keyed
// strings; Rows holds the complete typed transactions.
type ImportResult struct {
	Columns     []string     `json:"columns"`
	Rows        []ImportRow  `json:"rows"`
	RawRows     []parser.Row `json:"rawRows"`
	RowCount    int          `json:"rowCount"`
	DroppedRows int          `json:"droppedRows"`
}

// ParseFile reads the first sheet of a Shopify export whose titles are on
// row headerRowIndex (0-based).
func ParseFile(data []byte, fileName string, headerRowIndex int, logger *slog.Logger) (*ImportResult, error) {
	wb, err := parser.ReadWorkbook(data, fileName)
	if err != nil {
		return nil, err
	}
	sheet, err := wb.FirstSheet()
	if err != nil {
		return nil, err
	}
	if headerRowIndex < 0 {
		headerRowIndex = 0
	}
	if sheet.RowCount() < headerRowIndex+1 {
		return nil, &parser.ParseError{
			Kind:      parser.ErrInsufficientRows,
			FileName:  fileName,
			HeaderRow: headerRowIndex,
			Detail:    fmt.Sprintf("the file has %d rows", sheet.RowCount()),
		}
	}

	parsed, err := parser.ExtractSheet(sheet, headerRowIndex,
		parser.WithFileName(fileName),
		parser.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	rows := MapRows(parsed.Columns, parsed.Rows, logger)
	return &ImportResult{
		Columns:     parsed.Columns,
		Rows:        rows,
		RawRows:     parsed.Rows,
		RowCount:    len(rows),
		DroppedRows: len(parsed.Rows) - len(rows),
	}, nil
}
