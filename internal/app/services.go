package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/resilient-tech/payments-processor/internal/extensions"
	jobmetrics "github.com/resilient-tech/payments-processor/internal/jobs"
	"github.com/resilient-tech/payments-processor/internal/notify"
	"github.com/resilient-tech/payments-processor/internal/observability"
	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/platform/cache"
	"github.com/resilient-tech/payments-processor/internal/platform/db"
	"github.com/resilient-tech/payments-processor/internal/settings"
	"github.com/resilient-tech/payments-processor/internal/shared"
	"github.com/resilient-tech/payments-processor/jobs"
	"github.com/resilient-tech/payments-processor/report"
)

// Services holds the wired dependencies shared by the API, the worker and the CLI.
type Services struct {
	Config     *Config
	Logger     *slog.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Metrics    *observability.Metrics
	JobMetrics *jobmetrics.Metrics
	Jobs       *jobs.Client
	PDF        *report.Client

	Payments *payments.Service
	Settings *settings.Service
	Notifier *notify.Notifier
	Reports  *notify.PDFRenderer
	RunKeys  *shared.IdempotencyStore
}

// NewServices connects to postgres and redis and wires the domain services.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, err
	}

	lang, err := language.Parse(cfg.ReportLanguage)
	if err != nil {
		logger.Warn("unknown report language, using English", slog.String("language", cfg.ReportLanguage))
		lang = language.English
	}
	renderer, err := notify.NewRenderer(lang)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("app: report templates: %w", err)
	}

	submitMinimum, err := cfg.SubmitMinimum()
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}
	filters := extensions.Defaults(cfg.SupplierDenylist, submitMinimum)

	repo := payments.NewRepository(pool)
	opts := append([]payments.Option{
		payments.WithInstructionStore(repo),
		payments.WithLogger(logger.With(slog.String("component", "payments"))),
	}, filters.Options()...)
	engine := payments.NewEngine(repo, opts...)

	settingsService := settings.NewService(settings.NewRepository(pool), repo)
	metrics := observability.NewMetrics()
	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	pdf := report.NewClient(cfg.GotenbergURL)

	return &Services{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Redis:      redisClient,
		Metrics:    metrics,
		JobMetrics: jobmetrics.NewMetrics(metrics.Registerer()),
		Jobs:       jobsClient,
		PDF:        pdf,
		Payments:   payments.NewService(engine, settingsService),
		Settings:   settingsService,
		Notifier: notify.NewNotifier(renderer, notify.NewPGRecipients(pool), jobsClient, cfg.NotifyRole,
			logger.With(slog.String("component", "notify"))),
		Reports: notify.NewPDFRenderer(renderer, pdf),
		RunKeys: shared.NewIdempotencyStore(pool),
	}, nil
}

// HealthChecks returns the dependency probes served on /healthz.
func (s *Services) HealthChecks() map[string]HealthCheck {
	return map[string]HealthCheck{
		"postgres": s.Pool.Ping,
		"redis": func(ctx context.Context) error {
			return s.Redis.Ping(ctx).Err()
		},
	}
}

// PaymentsRunJob builds the payments:run handler.
func (s *Services) PaymentsRunJob() *jobs.PaymentsRunJob {
	return jobs.NewPaymentsRunJob(jobs.PaymentsRunConfig{
		Settings:    s.Settings,
		Runner:      s.Payments,
		Notifier:    s.Notifier,
		Redis:       s.Redis,
		Keys:        s.RunKeys,
		Logger:      s.Logger.With(slog.String("job", jobs.TaskPaymentsRun)),
		Metrics:     s.JobMetrics,
		Concurrency: s.Config.RunConcurrency,
		LockTTL:     s.Config.RunLockTTL,
	})
}

// MailJob builds the mail:send handler.
func (s *Services) MailJob() *jobs.MailJob {
	return jobs.NewMailJob(jobs.NewSMTPSender(s.Config.SMTPHost, s.Config.SMTPPort), s.Config.SMTPFrom,
		s.Logger.With(slog.String("job", jobs.TaskTypeSendEmail)), s.JobMetrics)
}

// Close releases connections.
func (s *Services) Close() {
	if err := s.Jobs.Close(); err != nil {
		s.Logger.Warn("jobs client close", slog.Any("error", err))
	}
	if err := s.Redis.Close(); err != nil {
		s.Logger.Warn("redis close", slog.Any("error", err))
	}
	s.Pool.Close()
}
