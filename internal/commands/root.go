// Package commands implements the recon command line.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/deposit-recon/pkg/config"
)

// Version is set at build time.
var Version = "dev"

type app struct {
	logLevel string
	logger   *slog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "recon",
		Short:   "Reconcile payment deposits and Shopify payouts from spreadsheet exports",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := config.ParseLogLevel(a.logLevel)
			if err != nil {
				return err
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newDepositCommand(a))
	rootCmd.AddCommand(newShopifyCommand(a))
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
