package deposit

import (
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/deposit-recon/internal/domain/import/parser"
	"github.com/FACorreiaa/deposit-recon/pkg/money"
)

var hundred = decimal.NewFromInt(100)

// CalculateTotals sums the amount and refund columns of rows and applies the
// tax method. Cells that do not parse count as zero and are reported in
// InvalidCells; rows is never modified.
//
//	net   = Σ amount − Σ refund
//	final = net + tax
func CalculateTotals(rows []parser.Row, in TotalsInput, logger *slog.Logger) Calculation {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conv := converter{logger: logger}

	total := decimal.Zero
	refunds := decimal.Zero
	for i, row := range rows {
		total = total.Add(conv.cell(row, in.AmountColumn, i))
		if in.RefundColumn != "" {
			refunds = refunds.Add(conv.cell(row, in.RefundColumn, i))
		}
	}
	net := total.Sub(refunds)

	tax := decimal.Zero
	switch in.TaxMethod {
	case TaxMethodFixedPercent:
		tax = net.Mul(decimal.NewFromFloat(finite(in.TaxValue))).Div(hundred)
	case TaxMethodFixedAmount:
		tax = decimal.NewFromFloat(finite(in.TaxValue))
	case TaxMethodColumnBased:
		if in.TaxColumn != "" {
			for i, row := range rows {
				tax = tax.Add(conv.cell(row, in.TaxColumn, i))
			}
		}
	case TaxMethodNone, "":
	default:
		logger.Warn("unknown tax method, no tax applied", slog.String("tax_method", string(in.TaxMethod)))
	}

	return Calculation{
		TotalAmount:     round2(total),
		TotalRefunds:    round2(refunds),
		NetAmount:       round2(net),
		TaxAmount:       round2(tax),
		FinalAmount:     round2(net.Add(tax)),
		RowsAfterFilter: len(rows),
		InvalidCells:    conv.invalid,
	}
}

type converter struct {
	logger  *slog.Logger
	invalid int
}

// cell reads column of row as a number. Blank and literal "0" cells skip the
// normalizer.
func (c *converter) cell(row parser.Row, column string, index int) decimal.Decimal {
	raw := row[column]
	if raw == "" || raw == "0" {
		return decimal.Zero
	}

	v := money.ParseNumberWithCommas(raw)
	if math.IsNaN(v) {
		c.invalid++
		c.logger.Warn("could not parse numeric cell, counting as 0",
			slog.String("column", column),
			slog.Int("row", index),
			slog.String("value", raw),
		)
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(d decimal.Decimal) float64 {
	return money.RoundCents(d).InexactFloat64()
}
