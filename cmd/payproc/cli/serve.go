package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/resilient-tech/payments-processor/internal/app"
	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/settings"
	"github.com/resilient-tech/payments-processor/jobs"
	"github.com/resilient-tech/payments-processor/report"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the payments HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			services, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer services.Close()
			cfg, logger := services.Config, services.Logger

			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer func() {
				_ = inspector.Close()
			}()

			router := app.NewRouter(app.RouterParams{
				Logger:          logger,
				Config:          cfg,
				Metrics:         services.Metrics,
				PaymentsHandler: payments.NewHandler(logger, services.Payments, services.Reports, services.Jobs),
				SettingsHandler: settings.NewHandler(logger, services.Settings),
				ReportHandler:   report.NewHandler(services.PDF, logger),
				JobHandler:      jobs.NewHandler(inspector, logger),
				HealthChecks:    services.HealthChecks(),
			})

			srv := &http.Server{
				Addr:         cfg.AppAddr,
				Handler:      router,
				ReadTimeout:  cfg.AppReadTimeout,
				WriteTimeout: cfg.AppWriteTimeout,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				logger.Info("shutting down http server")
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}
