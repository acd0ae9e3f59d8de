package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/deposit-recon/internal/domain/shopify"
)

func newShopifyCommand(a *app) *cobra.Command {
	var headerRow int
	var group bool
	var csvOut bool
	var output string

	cmd := &cobra.Command{
		Use:   "shopify <file>",
		Short: "Normalize a Shopify payments export",
		Long: `Reads a Shopify payments export (xlsx or CSV) and prints its transactions
as JSON, or as CSV with --csv. With --group, transactions sharing day, order
name and payment gateway are merged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			result, err := shopify.NewImporter(nil, a.logger).Import(cmd.Context(), data, filepath.Base(path), headerRow)
			if err != nil {
				return err
			}

			rows := result.Rows
			if group {
				rows = result.Grouped
			}
			if result.DroppedRows > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d rows without order name or payment gateway\n", result.DroppedRows)
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			if csvOut {
				data, err := shopify.ExportCSV(rows)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}

	cmd.Flags().IntVar(&headerRow, "header-row", 0, "0-based row holding the column titles")
	cmd.Flags().BoolVar(&group, "group", false, "merge rows by day, order name and payment gateway")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "write CSV instead of JSON")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")

	return cmd
}
