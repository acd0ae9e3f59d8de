package shopify

import (
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/deposit-recon/pkg/money"
)

type salesTotals struct {
	gross, refunded, net decimal.Decimal
}

// GroupSales merges rows sharing day|order_name|payment_gateway. Amounts are
// summed in decimal and the sums are rounded to cents, so float inputs such as
// 0.1 and 0.2 report 0.3 rather than 0.30000000000000004. Other fields come
// from the first row of each group. Groups keep the order in which their key
// first appears.
func GroupSales(rows []ImportRow) []ImportRow {
	index := make(map[string]int, len(rows))
	out := make([]ImportRow, 0, len(rows))
	totals := make([]salesTotals, 0, len(rows))

	for _, r := range rows {
		key := r.Key()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, r)
			totals = append(totals, salesTotals{})
		}
		t := &totals[i]
		t.gross = t.gross.Add(decimal.NewFromFloat(r.GrossPayments))
		t.refunded = t.refunded.Add(decimal.NewFromFloat(r.RefundedPayments))
		t.net = t.net.Add(decimal.NewFromFloat(r.NetPayments))
	}

	for i := range out {
		out[i].GrossPayments = money.RoundCents(totals[i].gross).InexactFloat64()
		out[i].RefundedPayments = money.RoundCents(totals[i].refunded).InexactFloat64()
		out[i].NetPayments = money.RoundCents(totals[i].net).InexactFloat64()
	}
	return out
}

// ExportCSV renders rows as CSV with snake_case headers.
func ExportCSV(rows []ImportRow) ([]byte, error) {
	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to export shopify rows: %w", err)
	}
	return data, nil
}
