package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/resilient-tech/payments-processor/internal/observability"
	_ "github.com/resilient-tech/payments-processor/internal/testing/guard"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardEnablesTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Cleanup(RefreshTestMode)
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("API_TOKEN_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("SUPPLIER_DENYLIST", "Acme,Globex")
	t.Setenv("AUTO_SUBMIT_MIN_AMOUNT", "125.50")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "0 6 * * *", cfg.RunCron)
	require.Equal(t, 4, cfg.RunConcurrency)
	require.Equal(t, "Auto Payments Manager", cfg.NotifyRole)
	require.Equal(t, []string{"Acme", "Globex"}, cfg.SupplierDenylist)
	minimum, err := cfg.SubmitMinimum()
	require.NoError(t, err)
	require.Equal(t, "125.5", minimum.String())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresTokenHash(t *testing.T) {
	t.Setenv("API_TOKEN_HASH", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsBadMinimum(t *testing.T) {
	t.Setenv("API_TOKEN_HASH", "hash")
	t.Setenv("AUTO_SUBMIT_MIN_AMOUNT", "lots")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsBadLogLevel(t *testing.T) {
	t.Setenv("API_TOKEN_HASH", "hash")
	t.Setenv("LOG_LEVEL", "chatty")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("payment run report not sent", slog.String("company", "ACME"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "payproc", entry["service"])
	require.Equal(t, "production", entry["env"])
	require.Equal(t, "ACME", entry["company"])
	require.Equal(t, "WARN", entry["level"])
}

func TestBearerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	h := BearerAuth(string(hash), quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer s3cret", http.StatusNoContent},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic s3cret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/payments/preview", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRouterHealthAndAuth(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  quietLogger(),
		Config:  &Config{APITokenHash: "not-a-hash"},
		Metrics: observability.NewMetrics(),
		HealthChecks: map[string]HealthCheck{
			"postgres": func(ctx context.Context) error { return nil },
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"postgres":"ok"`)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments/preview", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterHealthDegraded(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: quietLogger(),
		HealthChecks: map[string]HealthCheck{
			"redis": func(ctx context.Context) error { return errors.New("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "degraded")
}
