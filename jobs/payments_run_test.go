package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/resilient-tech/payments-processor/internal/jobs"
	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/shared"
)

var runDay = time.Date(2025, 2, 3, 6, 0, 0, 0, time.UTC)

type fakeSettings struct {
	mu       sync.Mutex
	settings map[string]payments.Setting
	due      []string
	executed []string
}

func (f *fakeSettings) Get(ctx context.Context, company string) (payments.Setting, error) {
	s, ok := f.settings[company]
	if !ok {
		return payments.Setting{}, payments.ErrSettingNotFound
	}
	return s, nil
}

func (f *fakeSettings) Due(ctx context.Context, today time.Time) ([]payments.Setting, error) {
	out := make([]payments.Setting, 0, len(f.due))
	for _, c := range f.due {
		out = append(out, f.settings[c])
	}
	return out, nil
}

func (f *fakeSettings) MarkExecuted(ctx context.Context, company string, today time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, company)
	return true, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (f *fakeRunner) RunSetting(ctx context.Context, setting payments.Setting) (*payments.RunContext, error) {
	f.mu.Lock()
	f.calls = append(f.calls, setting.Company)
	f.mu.Unlock()
	if err := f.failFor[setting.Company]; err != nil {
		return nil, err
	}
	res := payments.NewClassificationResult()
	res.Valid["Acme Supplies"] = []*payments.Invoice{
		{ID: "PINV-1", SupplierID: "Acme Supplies", PaymentInstruction: "ACC-PAY-1", AutoSubmit: true},
		{ID: "PINV-2", SupplierID: "Acme Supplies", PaymentInstruction: "ACC-PAY-1", AutoSubmit: true},
	}
	res.Invalid["Blocked Ltd"] = []*payments.Invoice{
		{ID: "PINV-3", SupplierID: "Blocked Ltd", ReasonCode: payments.ReasonSupplierBlocked},
	}
	return &payments.RunContext{ID: uuid.New(), Setting: setting, Result: res}, nil
}

type memoryKeys struct {
	mu      sync.Mutex
	keys    map[string]bool
	cutoffs []time.Time
}

func (m *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = true
	return nil
}

func (m *memoryKeys) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"/"+key)
	return nil
}

func (m *memoryKeys) Cleanup(ctx context.Context, module string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 0, nil
}

type countingNotifier struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (n *countingNotifier) NotifyRun(ctx context.Context, rc *payments.RunContext) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, rc.Setting.Company)
	return n.err
}

type runFixture struct {
	job      *PaymentsRunJob
	settings *fakeSettings
	runner   *fakeRunner
	keys     *memoryKeys
	notifier *countingNotifier
	redis    *miniredis.Miniredis
	client   *redis.Client
	registry *prometheus.Registry
}

func newRunFixture(t *testing.T, companies ...string) *runFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	settings := &fakeSettings{settings: map[string]payments.Setting{}}
	for _, c := range companies {
		settings.settings[c] = payments.Setting{Company: c, AutoGenerateEntries: true, AutoSubmitEntries: true}
		settings.due = append(settings.due, c)
	}
	f := &runFixture{
		settings: settings,
		runner:   &fakeRunner{failFor: map[string]error{}},
		keys:     &memoryKeys{},
		notifier: &countingNotifier{},
		redis:    mr,
		client:   client,
		registry: prometheus.NewRegistry(),
	}
	f.job = NewPaymentsRunJob(PaymentsRunConfig{
		Settings:    settings,
		Runner:      f.runner,
		Notifier:    f.notifier,
		Redis:       client,
		Keys:        f.keys,
		Metrics:     jobmetrics.NewMetrics(f.registry),
		Concurrency: 2,
		LockTTL:     time.Minute,
	})
	f.job.clock = func() time.Time { return runDay }
	return f
}

func runTask(t *testing.T, company string) *asynq.Task {
	t.Helper()
	task, err := NewPaymentsRunTask(company)
	require.NoError(t, err)
	return task
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestPaymentsRunProcessesDueCompanies(t *testing.T) {
	f := newRunFixture(t, "ACME", "Globex", "Initech")

	require.NoError(t, f.job.Handle(context.Background(), runTask(t, "")))

	require.ElementsMatch(t, []string{"ACME", "Globex", "Initech"}, f.runner.calls)
	require.ElementsMatch(t, []string{"ACME", "Globex", "Initech"}, f.settings.executed)
	require.ElementsMatch(t, []string{"ACME", "Globex", "Initech"}, f.notifier.runs)
	require.False(t, f.redis.Exists(shared.RunLockKey("ACME", runDay)))
	require.Equal(t, []time.Time{runDay.Add(-runKeyRetention)}, f.keys.cutoffs)

	require.Equal(t, 2.0, counterValue(t, f.registry, "payproc_invoices_classified_total",
		map[string]string{"company": "ACME", "outcome": "valid"}))
	require.Equal(t, 1.0, counterValue(t, f.registry, "payproc_invoices_classified_total",
		map[string]string{"company": "ACME", "outcome": "invalid", "reason_code": "1002"}))
	require.Equal(t, 1.0, counterValue(t, f.registry, "payproc_payment_instructions_total",
		map[string]string{"company": "ACME", "status": payments.InstructionSubmitted}))
	require.Equal(t, 1.0, counterValue(t, f.registry, "payproc_jobs_total",
		map[string]string{"job": TaskPaymentsRun, "status": "success"}))
}

func TestPaymentsRunSkipsCompletedCompaniesOnRetry(t *testing.T) {
	f := newRunFixture(t, "ACME", "Globex")
	f.runner.failFor["Globex"] = errors.New("database unavailable")

	err := f.job.Handle(context.Background(), runTask(t, ""))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Globex")
	require.Equal(t, []string{"ACME"}, f.settings.executed)

	delete(f.runner.failFor, "Globex")
	f.runner.calls = nil
	require.NoError(t, f.job.Handle(context.Background(), runTask(t, "")))
	require.Equal(t, []string{"Globex"}, f.runner.calls)
	require.Equal(t, 1.0, counterValue(t, f.registry, "payproc_runs_skipped_total",
		map[string]string{"company": "ACME", "reason": "already_ran"}))
}

func TestPaymentsRunSkipsLockedCompany(t *testing.T) {
	f := newRunFixture(t, "ACME")
	require.NoError(t, f.redis.Set(shared.RunLockKey("ACME", runDay), "other-worker"))

	require.NoError(t, f.job.Handle(context.Background(), runTask(t, "")))
	require.Empty(t, f.runner.calls)
	require.Empty(t, f.settings.executed)
	require.Equal(t, 1.0, counterValue(t, f.registry, "payproc_runs_skipped_total",
		map[string]string{"company": "ACME", "reason": "locked"}))
}

func TestPaymentsRunManualCompany(t *testing.T) {
	f := newRunFixture(t, "ACME", "Globex")

	require.NoError(t, f.job.Handle(context.Background(), runTask(t, "Globex")))
	require.NoError(t, f.job.Handle(context.Background(), runTask(t, "Globex")))
	require.Equal(t, []string{"Globex", "Globex"}, f.runner.calls)
	require.Empty(t, f.keys.keys)
	require.Empty(t, f.keys.cutoffs)

	err := f.job.Handle(context.Background(), runTask(t, "Unknown"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPaymentsRunPermanentFailuresSkipRetry(t *testing.T) {
	f := newRunFixture(t, "ACME", "Globex")
	f.runner.failFor["ACME"] = fmt.Errorf("%w: ACME", payments.ErrSettingDisabled)
	f.runner.failFor["Globex"] = &payments.ConfigError{Company: "Globex", Err: payments.ErrDiscountAccountMissing}

	err := f.job.Handle(context.Background(), runTask(t, "ACME"))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, payments.ErrSettingDisabled)

	err = f.job.Handle(context.Background(), runTask(t, "Globex"))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, payments.ErrDiscountAccountMissing)

	err = f.job.Handle(context.Background(), runTask(t, ""))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, f.keys.keys)
}

func TestPaymentsRunTransientFailureStillRetried(t *testing.T) {
	f := newRunFixture(t, "ACME", "Globex")
	f.runner.failFor["ACME"] = &payments.ConfigError{Company: "ACME", Err: payments.ErrDiscountAccountMissing}
	f.runner.failFor["Globex"] = errors.New("database unavailable")

	err := f.job.Handle(context.Background(), runTask(t, ""))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, payments.ErrDiscountAccountMissing)
}

func TestPaymentsRunNotifyErrorDoesNotFailRun(t *testing.T) {
	f := newRunFixture(t, "ACME")
	f.notifier.err = errors.New("smtp down")

	require.NoError(t, f.job.Handle(context.Background(), runTask(t, "")))
	require.Equal(t, []string{"ACME"}, f.settings.executed)
}

func TestPaymentsRunRejectsBadPayload(t *testing.T) {
	f := newRunFixture(t)
	err := f.job.Handle(context.Background(), asynq.NewTask(TaskPaymentsRun, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPaymentsRunTaskPayload(t *testing.T) {
	task := runTask(t, "ACME")
	require.Equal(t, TaskPaymentsRun, task.Type())

	var payload PaymentsRunPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "ACME", payload.Company)
}
