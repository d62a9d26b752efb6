package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/resilient-tech/payments-processor/internal/jobs"
	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/shared"
)

const (
	runIdempotencyModule = "payments_run"
	// runKeyRetention is how long completed run keys are kept.
	runKeyRetention = 30 * 24 * time.Hour
)

// SettingsScheduler selects and marks the settings a run works on.
type SettingsScheduler interface {
	Get(ctx context.Context, company string) (payments.Setting, error)
	Due(ctx context.Context, today time.Time) ([]payments.Setting, error)
	MarkExecuted(ctx context.Context, company string, today time.Time) (bool, error)
}

// PaymentRunner executes one company run.
type PaymentRunner interface {
	RunSetting(ctx context.Context, setting payments.Setting) (*payments.RunContext, error)
}

// RunNotifier reports a finished run.
type RunNotifier interface {
	NotifyRun(ctx context.Context, rc *payments.RunContext) error
}

// RunKeys records which company runs completed. *shared.IdempotencyStore satisfies it.
type RunKeys interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
	Cleanup(ctx context.Context, module string, cutoff time.Time) (int64, error)
}

// PaymentsRunConfig collects the run job dependencies.
type PaymentsRunConfig struct {
	Settings    SettingsScheduler
	Runner      PaymentRunner
	Notifier    RunNotifier
	Redis       redis.UniversalClient
	Keys        RunKeys
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	LockTTL     time.Duration
}

// PaymentsRunJob runs the automated payments of every due company.
type PaymentsRunJob struct {
	Settings    SettingsScheduler
	Runner      PaymentRunner
	Notifier    RunNotifier
	Redis       redis.UniversalClient
	Keys        RunKeys
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	LockTTL     time.Duration
	clock       func() time.Time
}

// NewPaymentsRunJob constructs the job handler.
func NewPaymentsRunJob(cfg PaymentsRunConfig) *PaymentsRunJob {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &PaymentsRunJob{
		Settings:    cfg.Settings,
		Runner:      cfg.Runner,
		Notifier:    cfg.Notifier,
		Redis:       cfg.Redis,
		Keys:        cfg.Keys,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		Concurrency: cfg.Concurrency,
		LockTTL:     cfg.LockTTL,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes payment run tasks. Failed companies are joined into the
// returned error so asynq retries them; completed ones are skipped on retry.
// Disabled settings and configuration errors are not retried.
func (j *PaymentsRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Settings == nil || j.Runner == nil {
		return errors.New("payments run: handler not configured")
	}
	var payload PaymentsRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPaymentsRun)
	today := j.now()
	manual := payload.Company != ""

	var due []payments.Setting
	if manual {
		setting, err := j.Settings.Get(ctx, payload.Company)
		if err != nil {
			if errors.Is(err, payments.ErrSettingNotFound) {
				j.logger().Warn("payments run for unknown company", slog.String("company", payload.Company))
				_ = tracker.End(err)
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return tracker.End(err)
		}
		due = append(due, setting)
	} else {
		var err error
		due, err = j.Settings.Due(ctx, today)
		if err != nil {
			j.logger().Error("load due settings", slog.Any("error", err))
			return tracker.End(err)
		}
	}
	if len(due) == 0 {
		j.logger().Info("no payment runs due", slog.String("date", today.Format(time.DateOnly)))
		return tracker.End(nil)
	}

	errs := make([]error, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Concurrency)
	for i, setting := range due {
		g.Go(func() error {
			errs[i] = j.runCompany(gctx, setting, today, manual)
			return nil
		})
	}
	_ = g.Wait()
	if !manual {
		j.pruneKeys(ctx, today)
	}
	return tracker.End(joinRunErrors(errs))
}

// joinRunErrors combines company failures. The task is retried unless every
// failure is permanent.
func joinRunErrors(errs []error) error {
	joined := errors.Join(errs...)
	if joined == nil {
		return nil
	}
	for _, err := range errs {
		if err != nil && !permanentRunError(err) {
			return joined
		}
	}
	return fmt.Errorf("%w: %w", joined, asynq.SkipRetry)
}

// permanentRunError reports failures that a retry cannot fix.
func permanentRunError(err error) bool {
	var cfgErr *payments.ConfigError
	return errors.Is(err, payments.ErrSettingDisabled) || errors.As(err, &cfgErr)
}

func (j *PaymentsRunJob) pruneKeys(ctx context.Context, today time.Time) {
	if j.Keys == nil {
		return
	}
	n, err := j.Keys.Cleanup(ctx, runIdempotencyModule, today.Add(-runKeyRetention))
	if err != nil {
		j.logger().Warn("prune run keys", slog.Any("error", err))
		return
	}
	if n > 0 {
		j.logger().Debug("pruned run keys", slog.Int64("count", n))
	}
}

func (j *PaymentsRunJob) runCompany(ctx context.Context, setting payments.Setting, today time.Time, manual bool) error {
	company := setting.Company
	logger := j.logger().With(slog.String("company", company))

	lock, err := shared.AcquireLock(ctx, j.Redis, shared.RunLockKey(company, today), j.LockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			logger.Info("payment run already in progress")
			j.metrics().Skip(company, "locked")
			return nil
		}
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release run lock", slog.Any("error", err))
		}
	}()

	key := shared.RunIdempotencyKey(company, today)
	if !manual && j.Keys != nil {
		if err := j.Keys.CheckAndInsert(ctx, key, runIdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				logger.Info("payment run already completed today")
				j.metrics().Skip(company, "already_ran")
				return nil
			}
			return err
		}
	}

	rc, err := j.Runner.RunSetting(ctx, setting)
	if err != nil {
		logger.Error("payment run failed", slog.Any("error", err))
		if !manual && j.Keys != nil {
			if delErr := j.Keys.Delete(context.WithoutCancel(ctx), key, runIdempotencyModule); delErr != nil {
				logger.Warn("release run key", slog.Any("error", delErr))
			}
		}
		return fmt.Errorf("payments run %s: %w", company, err)
	}

	if _, err := j.Settings.MarkExecuted(ctx, company, today); err != nil {
		logger.Warn("mark setting executed", slog.Any("error", err))
	}
	j.record(company, rc)

	valid, invalid := rc.Result.Counts()
	logger.Info("payment run completed",
		slog.String("run_id", rc.ID.String()),
		slog.Int("valid", valid),
		slog.Int("invalid", invalid))

	if j.Notifier != nil {
		if err := j.Notifier.NotifyRun(ctx, rc); err != nil {
			logger.Warn("payment run report not sent", slog.Any("error", err))
		}
	}
	return nil
}

func (j *PaymentsRunJob) record(company string, rc *payments.RunContext) {
	m := j.metrics()
	byCode := make(map[payments.ReasonCode]int)
	for _, invoices := range rc.Result.Invalid {
		for _, inv := range invoices {
			byCode[inv.ReasonCode]++
		}
	}
	for code, n := range byCode {
		m.AddInvoices(company, "invalid", string(code), n)
	}

	submitted := make(map[string]bool)
	valid := 0
	for _, invoices := range rc.Result.Valid {
		valid += len(invoices)
		for _, inv := range invoices {
			if inv.PaymentInstruction == "" {
				continue
			}
			auto, seen := submitted[inv.PaymentInstruction]
			submitted[inv.PaymentInstruction] = (auto || !seen) && inv.AutoSubmit && rc.Setting.AutoSubmitEntries
		}
	}
	m.AddInvoices(company, "valid", "", valid)

	drafts, submits := 0, 0
	for _, auto := range submitted {
		if auto {
			submits++
		} else {
			drafts++
		}
	}
	m.AddInstructions(company, string(payments.InstructionDraft), drafts)
	m.AddInstructions(company, string(payments.InstructionSubmitted), submits)
}

func (j *PaymentsRunJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *PaymentsRunJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PaymentsRunJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
