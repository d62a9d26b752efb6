package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resilient-tech/payments-processor/internal/payments"
)

// Repository defines setting persistence.
type Repository interface {
	Get(ctx context.Context, company string) (payments.Setting, error)
	List(ctx context.Context) ([]payments.Setting, error)
	Upsert(ctx context.Context, setting payments.Setting) error
	MarkExecuted(ctx context.Context, company string, day time.Time) (bool, error)
}

// Ensure implementation
var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const selectSettings = `
	SELECT company, COALESCE(bank_account, ''), monday, tuesday, wednesday, thursday, friday, saturday, sunday,
	       due_date_offset, disabled, auto_generate_entries, auto_submit_entries,
	       group_payments_by_supplier, limit_payment_to_outstanding, claim_early_payment_discount,
	       exclude_foreign_currency_invoices, ignore_blocked_suppliers, ignore_blocked_invoices,
	       auto_generate_threshold, auto_submit_threshold, last_execution
	FROM automation_settings`

func scanSetting(row pgx.Row) (payments.Setting, error) {
	var s payments.Setting
	w := &s.Weekdays
	err := row.Scan(
		&s.Company, &s.BankAccount, &w[0], &w[1], &w[2], &w[3], &w[4], &w[5], &w[6],
		&s.DueDateOffset, &s.Disabled, &s.AutoGenerateEntries, &s.AutoSubmitEntries,
		&s.GroupPaymentsBySupplier, &s.LimitPaymentToOutstanding, &s.ClaimEarlyPaymentDiscount,
		&s.ExcludeForeignCurrencyInvoices, &s.IgnoreBlockedSuppliers, &s.IgnoreBlockedInvoices,
		&s.AutoGenerateThreshold, &s.AutoSubmitThreshold, &s.LastExecution,
	)
	return s, err
}

func (r *pgRepository) Get(ctx context.Context, company string) (payments.Setting, error) {
	s, err := scanSetting(r.pool.QueryRow(ctx, selectSettings+` WHERE company = $1`, company))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payments.Setting{}, payments.ErrSettingNotFound
		}
		return payments.Setting{}, err
	}
	return s, nil
}

func (r *pgRepository) List(ctx context.Context) ([]payments.Setting, error) {
	rows, err := r.pool.Query(ctx, selectSettings+` ORDER BY company`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []payments.Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgRepository) Upsert(ctx context.Context, s payments.Setting) error {
	w := s.Weekdays
	_, err := r.pool.Exec(ctx, `
		INSERT INTO automation_settings (
			company, bank_account, monday, tuesday, wednesday, thursday, friday, saturday, sunday,
			due_date_offset, disabled, auto_generate_entries, auto_submit_entries,
			group_payments_by_supplier, limit_payment_to_outstanding, claim_early_payment_discount,
			exclude_foreign_currency_invoices, ignore_blocked_suppliers, ignore_blocked_invoices,
			auto_generate_threshold, auto_submit_threshold, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, NOW())
		ON CONFLICT (company) DO UPDATE SET
			bank_account = EXCLUDED.bank_account,
			monday = EXCLUDED.monday, tuesday = EXCLUDED.tuesday, wednesday = EXCLUDED.wednesday,
			thursday = EXCLUDED.thursday, friday = EXCLUDED.friday, saturday = EXCLUDED.saturday,
			sunday = EXCLUDED.sunday,
			due_date_offset = EXCLUDED.due_date_offset,
			disabled = EXCLUDED.disabled,
			auto_generate_entries = EXCLUDED.auto_generate_entries,
			auto_submit_entries = EXCLUDED.auto_submit_entries,
			group_payments_by_supplier = EXCLUDED.group_payments_by_supplier,
			limit_payment_to_outstanding = EXCLUDED.limit_payment_to_outstanding,
			claim_early_payment_discount = EXCLUDED.claim_early_payment_discount,
			exclude_foreign_currency_invoices = EXCLUDED.exclude_foreign_currency_invoices,
			ignore_blocked_suppliers = EXCLUDED.ignore_blocked_suppliers,
			ignore_blocked_invoices = EXCLUDED.ignore_blocked_invoices,
			auto_generate_threshold = EXCLUDED.auto_generate_threshold,
			auto_submit_threshold = EXCLUDED.auto_submit_threshold,
			updated_at = NOW()
	`, s.Company, s.BankAccount, w[0], w[1], w[2], w[3], w[4], w[5], w[6],
		s.DueDateOffset, s.Disabled, s.AutoGenerateEntries, s.AutoSubmitEntries,
		s.GroupPaymentsBySupplier, s.LimitPaymentToOutstanding, s.ClaimEarlyPaymentDiscount,
		s.ExcludeForeignCurrencyInvoices, s.IgnoreBlockedSuppliers, s.IgnoreBlockedInvoices,
		s.AutoGenerateThreshold, s.AutoSubmitThreshold)
	return err
}

func (r *pgRepository) MarkExecuted(ctx context.Context, company string, day time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE automation_settings
		SET last_execution = $2, updated_at = NOW()
		WHERE company = $1 AND (last_execution IS NULL OR last_execution < $2)
	`, company, day)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
