package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/platform/httpx"
)

// Handler serves the automation settings API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{company}", h.get)
	r.Put("/{company}", h.put)
}

type validationProblem struct {
	httpx.ProblemDetail
	Fields map[string]string `json:"fields"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	setting, err := h.service.Get(r.Context(), chi.URLParam(r, "company"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, setting)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var setting payments.Setting
	if err := httpx.DecodeJSON(r, &setting); err != nil {
		httpx.RespondError(w, err)
		return
	}
	setting.Company = chi.URLParam(r, "company")
	// last_execution is owned by the scheduler.
	if current, err := h.service.Get(r.Context(), setting.Company); err == nil {
		setting.LastExecution = current.LastExecution
	} else if !errors.Is(err, payments.ErrSettingNotFound) {
		h.fail(w, err)
		return
	} else {
		setting.LastExecution = nil
	}

	saved, err := h.service.Save(r.Context(), setting)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("automation setting saved",
		slog.String("company", saved.Company),
		slog.String("weekdays", saved.Weekdays.String()),
		slog.Bool("auto_generate", saved.AutoGenerateEntries))
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.JSON(w, http.StatusUnprocessableEntity, validationProblem{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Validation Failed",
				Status: http.StatusUnprocessableEntity,
				Detail: ErrInvalidSetting.Error(),
			},
			Fields: verr.Fields,
		})
	case errors.Is(err, payments.ErrSettingNotFound), errors.Is(err, payments.ErrCompanyNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	default:
		h.logger.Error("settings request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
