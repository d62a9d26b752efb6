package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/resilient-tech/payments-processor/internal/observability"
	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/platform/httpx"
	"github.com/resilient-tech/payments-processor/internal/settings"
	"github.com/resilient-tech/payments-processor/jobs"
	"github.com/resilient-tech/payments-processor/report"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Metrics         *observability.Metrics
	PaymentsHandler *payments.Handler
	SettingsHandler *settings.Handler
	ReportHandler   *report.Handler
	JobHandler      *jobs.Handler
	HealthChecks    map[string]HealthCheck
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.HealthChecks, params.Metrics))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	tokenHash := ""
	if params.Config != nil {
		tokenHash = params.Config.APITokenHash
	}
	r.Route("/api", func(api chi.Router) {
		api.Use(BearerAuth(tokenHash, params.Logger))
		if params.PaymentsHandler != nil {
			api.Route("/payments", params.PaymentsHandler.MountRoutes)
		}
		if params.SettingsHandler != nil {
			api.Route("/settings", params.SettingsHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			api.Route("/reports", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

func healthz(checks map[string]HealthCheck, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			err := check(ctx)
			metrics.SetDependencyUp(name, err == nil)
			if err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		httpx.JSON(w, status, result)
	}
}
