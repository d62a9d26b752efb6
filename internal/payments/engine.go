package payments

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// balanceHorizonYears includes scheduled future terms in the outstanding fetch.
const balanceHorizonYears = 1

// Engine drives one run per automation setting through fetch, resolution,
// classification and instruction construction.
type Engine struct {
	store           Store
	instructions    InstructionStore
	generateFilters []GenerateFilter
	submitFilters   []SubmitFilter
	logger          *slog.Logger
	clock           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithInstructionStore enables instruction construction in Execute.
func WithInstructionStore(s InstructionStore) Option {
	return func(e *Engine) { e.instructions = s }
}

// WithGenerateFilters registers filter_auto_generate_payments extensions in order.
func WithGenerateFilters(filters ...GenerateFilter) Option {
	return func(e *Engine) { e.generateFilters = append(e.generateFilters, filters...) }
}

// WithSubmitFilters registers filter_auto_submit_payments extensions in order.
func WithSubmitFilters(filters ...SubmitFilter) Option {
	return func(e *Engine) { e.submitFilters = append(e.submitFilters, filters...) }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the clock for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine constructs an engine reading from store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions tweaks a single run.
type RunOptions struct {
	// PaymentDate replaces the computed next run date.
	PaymentDate *time.Time
}

// Classify runs every stage up to submit classification. It never writes to
// the store.
func (e *Engine) Classify(ctx context.Context, setting Setting, opts RunOptions) (*RunContext, error) {
	if setting.Company == "" {
		return nil, &ConfigError{Err: ErrCompanyRequired}
	}
	rc := newRunContext(setting, e.now(), opts.PaymentDate)
	log := e.log().With(slog.String("company", setting.Company), slog.String("run_id", rc.ID.String()))

	rc.enter(StageFetching)
	rows, err := e.fetch(ctx, rc)
	if err != nil {
		return nil, err
	}

	rc.enter(StageResolving)
	rc.Invoices = buildInvoices(rc, rows)

	rc.enter(StageAllocating)
	e.prepareBalances(rc)

	rc.enter(StageClassifying)
	e.classify(rc, log)

	if setting.GroupPaymentsBySupplier {
		rc.enter(StageGroupReevaluating)
		reevaluateGroups(rc)
	}

	rc.enter(StageSubmitClassifying)
	e.classifySubmission(rc)

	valid, invalid := rc.Result.Counts()
	log.Info("payments classified",
		slog.Time("next_run_date", rc.NextRunDate),
		slog.Int("valid", valid),
		slog.Int("invalid", invalid))
	return rc, nil
}

// Execute classifies and then constructs payment instructions for the valid
// set when auto generation is enabled.
func (e *Engine) Execute(ctx context.Context, setting Setting) (*RunContext, error) {
	rc, err := e.Classify(ctx, setting, RunOptions{})
	if err != nil {
		return nil, err
	}
	if setting.AutoGenerateEntries && e.instructions != nil {
		rc.enter(StageConstructing)
		e.construct(ctx, rc)
	}
	rc.enter(StageDone)
	return rc, nil
}

func (e *Engine) fetch(ctx context.Context, rc *RunContext) ([]InvoiceRow, error) {
	company := rc.Setting.Company

	defaults, err := e.store.CompanyDefaults(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("payments: company defaults: %w", err)
	}
	rc.Defaults = defaults
	if rc.Setting.ClaimEarlyPaymentDiscount && defaults.DiscountAccount == "" {
		return nil, &ConfigError{Company: company, Err: ErrDiscountAccountMissing}
	}

	rows, err := e.store.DueInvoiceRows(ctx, DueInvoiceQuery{
		Company:       company,
		NextRunDate:   rc.NextRunDate,
		DueDateOffset: rc.Setting.DueDateOffset,
		ClaimDiscount: rc.Setting.ClaimEarlyPaymentDiscount,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: due invoices: %w", err)
	}

	supplierIDs, invoiceIDs := distinctIDs(rows)
	suppliers, err := e.store.Suppliers(ctx, supplierIDs)
	if err != nil {
		return nil, fmt.Errorf("payments: suppliers: %w", err)
	}
	for i := range suppliers {
		sup := suppliers[i]
		sup.RemainingBalance = decimal.Zero
		rc.Suppliers[sup.ID] = &sup
	}

	drafts, err := e.store.DraftIndex(ctx, company, supplierIDs, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("payments: draft instructions: %w", err)
	}
	if drafts.Invoices != nil {
		rc.Drafts.Invoices = drafts.Invoices
	}
	if drafts.SupplierTotals != nil {
		rc.Drafts.SupplierTotals = drafts.SupplierTotals
	}

	if rc.Setting.LimitPaymentToOutstanding {
		asOf := rc.Today().AddDate(balanceHorizonYears, 0, 0)
		balances, err := e.store.OutstandingBalances(ctx, company, asOf)
		if err != nil {
			return nil, fmt.Errorf("payments: outstanding balances: %w", err)
		}
		for id, sup := range rc.Suppliers {
			sup.RemainingBalance = balances[id].Neg()
		}
	}
	return rows, nil
}

// prepareBalances nets drafted totals out of the remaining balances.
func (e *Engine) prepareBalances(rc *RunContext) {
	if !rc.Setting.LimitPaymentToOutstanding {
		return
	}
	for id, sup := range rc.Suppliers {
		remaining := sup.RemainingBalance.Sub(rc.Drafts.SupplierTotals[id])
		sup.RemainingBalance = decimal.Max(decimal.Zero, remaining)
	}
}

func (e *Engine) classify(rc *RunContext, log *slog.Logger) {
	chain := GenerationChain(e.generateFilters)
	for _, inv := range rc.Invoices {
		subject := Subject{Run: rc, Supplier: rc.Suppliers[inv.SupplierID], Invoice: inv}
		if rej, rule := chain.Evaluate(subject); rej != nil {
			rc.Result.addInvalid(inv, rej)
			log.Debug("invoice rejected",
				slog.String("invoice", inv.ID),
				slog.String("supplier", inv.SupplierID),
				slog.String("rule", rule),
				slog.String("reason_code", string(rej.Code)))
			continue
		}
		inv.AutoGenerate = true
		rc.Result.addValid(inv)
	}
}

func (e *Engine) classifySubmission(rc *RunContext) {
	if !rc.Setting.AutoSubmitEntries {
		return
	}
	chain := SubmissionChain(e.submitFilters)
	for _, id := range rc.Result.ValidSuppliers() {
		for _, inv := range rc.Result.Valid[id] {
			subject := Subject{Run: rc, Supplier: rc.Suppliers[id], Invoice: inv}
			if rej, _ := chain.Evaluate(subject); rej != nil {
				inv.reject(rej)
				continue
			}
			inv.AutoSubmit = true
		}
	}
	if rc.Setting.GroupPaymentsBySupplier {
		reevaluateGroupSubmission(rc)
	}
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now().UTC()
}

func distinctIDs(rows []InvoiceRow) (suppliers, invoices []string) {
	seenSup := make(map[string]struct{})
	seenInv := make(map[string]struct{})
	for _, row := range rows {
		if _, ok := seenSup[row.SupplierID]; !ok {
			seenSup[row.SupplierID] = struct{}{}
			suppliers = append(suppliers, row.SupplierID)
		}
		if _, ok := seenInv[row.ID]; !ok {
			seenInv[row.ID] = struct{}{}
			invoices = append(invoices, row.ID)
		}
	}
	sort.Strings(suppliers)
	sort.Strings(invoices)
	return suppliers, invoices
}
