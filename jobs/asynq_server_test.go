package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, QueueDefault, stats.Queue)
	require.Zero(t, stats.Pending)
}

func TestTaskErrorHandlerLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := taskErrorHandler(logger)

	task, err := NewPaymentsRunTask("ACME")
	require.NoError(t, err)
	handler.HandleError(context.Background(), task, fmt.Errorf("unknown company: %w", asynq.SkipRetry))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "task failed", entry["msg"])
	require.Equal(t, "ERROR", entry["level"])
	require.Equal(t, TaskPaymentsRun, entry["task"])
}

func TestAsynqLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newAsynqLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.Info("scheduler started ", 2, " entries")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "asynq", entry["component"])
	require.Equal(t, "scheduler started 2 entries", entry["msg"])
}
