// Package cli implements the payproc command line.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/resilient-tech/payments-processor/internal/app"
)

var version = "dev"

// NewRootCommand assembles the payproc command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "payproc",
		Short: "Automated supplier payments processor",
		Long: `payproc classifies due purchase invoices per company, creates payment
entries for the eligible ones and reports the outcome.

Configuration is read from the environment (and a .env file when present).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newPreviewCommand(), newRunCommand(), newJobsCommand(), newMigrateCommand())
	return root
}

// bootstrap loads configuration and wires services for a command.
func bootstrap(ctx context.Context) (*app.Services, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg)
	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		return nil, err
	}
	return services, nil
}
