package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/resilient-tech/payments-processor/internal/app"
	"github.com/resilient-tech/payments-processor/jobs"
)

func newRunCommand() *cobra.Command {
	var (
		company string
		output  string
		notify  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run automated payments in the foreground",
		Long: `Without --company every setting due today runs exactly as the scheduled
worker would (per-company lock, once per day). With --company that company
runs immediately and its payment entries are printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			if company == "" {
				return runDue(cmd.Context(), services)
			}
			rc, err := services.Payments.Run(cmd.Context(), company)
			if err != nil {
				return err
			}
			if notify {
				if err := services.Notifier.NotifyRun(cmd.Context(), rc); err != nil {
					services.Logger.Warn("payment run report not sent", slog.Any("error", err))
				}
			}
			if output == "json" {
				return writeJSON(cmd.OutOrStdout(), rc)
			}
			return writeTable(cmd.OutOrStdout(), rc)
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "run a single company")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	cmd.Flags().BoolVar(&notify, "notify", false, "queue the report email after a single company run")
	return cmd
}

func runDue(ctx context.Context, services *app.Services) error {
	job := services.PaymentsRunJob()
	task, err := jobs.NewPaymentsRunTask("")
	if err != nil {
		return err
	}
	return job.Handle(ctx, task)
}
