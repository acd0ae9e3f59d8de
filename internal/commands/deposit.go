package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/deposit-recon/internal/domain/deposit"
	"github.com/FACorreiaa/deposit-recon/pkg/money"
)

type depositOptions struct {
	settingsFile string
	headerRow    int
	amount       string
	refund       string
	filterColumn string
	filterValues []string
	taxMethod    string
	taxValue     float64
	taxColumn    string
	currency     string
	jsonOut      bool
}

func newDepositCommand(a *app) *cobra.Command {
	var opts depositOptions

	cmd := &cobra.Command{
		Use:   "deposit <file>",
		Short: "Compute the totals of a deposit settlement file",
		Long: `Reads an xlsx or CSV settlement file and prints its totals.

Settings may come from a YAML file (--settings); any flag given on the command
line overrides the value from the file. Without an amount column the best
matching header is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(opts.settingsFile)
			if err != nil {
				return err
			}
			applyDepositFlags(cmd, &opts, settings)
			return runDeposit(cmd, a, args[0], settings, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.settingsFile, "settings", "", "YAML file with deposit settings")
	f.IntVar(&opts.headerRow, "header-row", 0, "0-based row holding the column titles")
	f.StringVar(&opts.amount, "amount", "", "amount column")
	f.StringVar(&opts.refund, "refund", "", "refund column")
	f.StringVar(&opts.filterColumn, "filter-column", "", "column whose values select the rows to count")
	f.StringSliceVar(&opts.filterValues, "filter-value", nil, "allowed value of the filter column (repeatable)")
	f.StringVar(&opts.taxMethod, "tax-method", "", "none, fixed_percent, fixed_amount or column_based")
	f.Float64Var(&opts.taxValue, "tax-value", 0, "percentage or fixed amount, depending on --tax-method")
	f.StringVar(&opts.taxColumn, "tax-column", "", "tax column for column_based tax")
	f.StringVar(&opts.currency, "currency", "EUR", "ISO 4217 currency used for display")
	f.BoolVar(&opts.jsonOut, "json", false, "print the calculation as JSON")

	return cmd
}

func loadSettings(path string) (*deposit.Settings, error) {
	settings := &deposit.Settings{}
	if path == "" {
		return settings, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return settings, nil
}

func applyDepositFlags(cmd *cobra.Command, opts *depositOptions, s *deposit.Settings) {
	changed := cmd.Flags().Changed
	if changed("header-row") {
		s.HeaderRowIndex = &opts.headerRow
	}
	if changed("amount") {
		s.AmountColumn = opts.amount
	}
	if changed("refund") {
		s.RefundColumn = opts.refund
	}
	if changed("filter-column") {
		s.FilterColumn = opts.filterColumn
	}
	if changed("filter-value") {
		s.FilterValues = opts.filterValues
	}
	if changed("tax-method") {
		s.TaxMethod = deposit.TaxMethod(opts.taxMethod)
	}
	if changed("tax-value") {
		s.TaxValue = opts.taxValue
	}
	if changed("tax-column") {
		s.TaxColumn = opts.taxColumn
	}
}

func runDeposit(cmd *cobra.Command, a *app, path string, settings *deposit.Settings, opts depositOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	fileName := filepath.Base(path)

	svc := deposit.NewService(nil, nil, nil, a.logger)
	header := settings.HeaderRow()
	result, err := svc.Analyze(cmd.Context(), data, fileName, "", &header)
	if err != nil {
		return err
	}

	if settings.AmountColumn == "" {
		settings.AmountColumn = result.Suggestions.AmountColumn
		if settings.AmountColumn == "" {
			return fmt.Errorf("no amount column given and none recognised among %s", strings.Join(result.Sheet.Columns, ", "))
		}
		a.logger.Info("using suggested amount column", "column", settings.AmountColumn)
	}
	if settings.PaymentMethodID == "" {
		settings.PaymentMethodID = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	calc, err := svc.Calculate(cmd.Context(), result.Sheet, *settings)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(calc)
	}
	return printCalculation(cmd.OutOrStdout(), fileName, settings, calc, strings.ToUpper(opts.currency))
}

func printCalculation(out io.Writer, fileName string, s *deposit.Settings, calc deposit.Calculation, currency string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "File\t%s\t\n", fileName)
	fmt.Fprintf(w, "Rows\t%d\t\n", calc.RowsAfterFilter)
	fmt.Fprintf(w, "Total (%s)\t%s\t\n", s.AmountColumn, money.Display(calc.TotalAmount, currency))
	if s.RefundColumn != "" {
		fmt.Fprintf(w, "Refunds (%s)\t%s\t\n", s.RefundColumn, money.Display(calc.TotalRefunds, currency))
	}
	fmt.Fprintf(w, "Net\t%s\t\n", money.Display(calc.NetAmount, currency))
	fmt.Fprintf(w, "Tax\t%s\t\n", money.Display(calc.TaxAmount, currency))
	fmt.Fprintf(w, "Final\t%s\t\n", money.Display(calc.FinalAmount, currency))
	if calc.InvalidCells > 0 {
		fmt.Fprintf(w, "Unreadable cells\t%d\t\n", calc.InvalidCells)
	}
	return w.Flush()
}
