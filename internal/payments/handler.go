package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/resilient-tech/payments-processor/internal/platform/httpx"
)

// ReportRenderer turns a classification into a PDF document.
type ReportRenderer interface {
	RenderPDF(ctx context.Context, company string, result *ClassificationResult) ([]byte, error)
}

// RunEnqueuer schedules an asynchronous run for one company.
type RunEnqueuer interface {
	EnqueueRun(ctx context.Context, company string) (string, error)
}

// Handler serves the payments API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer ReportRenderer
	enqueuer RunEnqueuer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, renderer ReportRenderer, enqueuer RunEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, renderer: renderer, enqueuer: enqueuer}
}

// MountRoutes registers payments routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/preview", h.preview)
	r.Get("/preview.pdf", h.previewPDF)
	r.Post("/runs", h.enqueueRun)
}

type previewResponse struct {
	Company     string                `json:"company"`
	RunID       string                `json:"run_id"`
	NextRunDate string                `json:"next_run_date"`
	Valid       int                   `json:"valid_count"`
	Invalid     int                   `json:"invalid_count"`
	Result      *ClassificationResult `json:"result"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.classify(w, r)
	if !ok {
		return
	}
	valid, invalid := rc.Result.Counts()
	httpx.JSON(w, http.StatusOK, previewResponse{
		Company:     rc.Setting.Company,
		RunID:       rc.ID.String(),
		NextRunDate: rc.NextRunDate.Format(time.DateOnly),
		Valid:       valid,
		Invalid:     invalid,
		Result:      rc.Result,
	})
}

func (h *Handler) previewPDF(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.RespondError(w, fmt.Errorf("%w: report rendering is not configured", httpx.ErrUnavailable))
		return
	}
	rc, ok := h.classify(w, r)
	if !ok {
		return
	}
	pdf, err := h.renderer.RenderPDF(r.Context(), rc.Setting.Company, rc.Result)
	if err != nil {
		h.logger.Error("render payments preview", slog.String("company", rc.Setting.Company), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: report could not be rendered", httpx.ErrUpstream))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q",
		fmt.Sprintf("upcoming-payments-%s.pdf", rc.NextRunDate.Format(time.DateOnly))))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) enqueueRun(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.RespondError(w, fmt.Errorf("%w: job queue is not configured", httpx.ErrUnavailable))
		return
	}
	company := r.URL.Query().Get("company")
	if company == "" {
		httpx.RespondError(w, fmt.Errorf("%w: company is required", httpx.ErrValidation))
		return
	}
	id, err := h.enqueuer.EnqueueRun(r.Context(), company)
	if err != nil {
		h.logger.Error("enqueue payments run", slog.String("company", company), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"company": company, "task_id": id})
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) (*RunContext, bool) {
	q := r.URL.Query()
	company := q.Get("company")

	var paymentDate *time.Time
	if raw := q.Get("payment_date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: payment_date must be YYYY-MM-DD", httpx.ErrValidation))
			return nil, false
		}
		paymentDate = &d
	}

	rc, err := h.service.Preview(r.Context(), company, paymentDate)
	if err != nil {
		if mapped := mapError(err); mapped != err {
			httpx.RespondError(w, mapped)
			return nil, false
		}
		h.logger.Error("payments preview", slog.String("company", company), slog.Any("error", err))
		httpx.RespondError(w, err)
		return nil, false
	}
	return rc, true
}

func mapError(err error) error {
	var cfgErr *ConfigError
	switch {
	case errors.Is(err, ErrSettingNotFound), errors.Is(err, ErrCompanyNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.As(err, &cfgErr):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	default:
		return err
	}
}
