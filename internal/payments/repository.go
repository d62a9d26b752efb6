package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/resilient-tech/payments-processor/internal/platform/db"
)

// ErrCompanyNotFound is returned when the company row is missing.
var ErrCompanyNotFound = errors.New("company not found")

// Ensure implementation
var _ Store = (*Repository)(nil)
var _ InstructionStore = (*Repository)(nil)

// Repository is the PostgreSQL backed Store and InstructionStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CompanyDefaults loads the company currency and discount account.
func (r *Repository) CompanyDefaults(ctx context.Context, company string) (CompanyDefaults, error) {
	var d CompanyDefaults
	err := r.pool.QueryRow(ctx, `
		SELECT default_currency, COALESCE(default_payment_discount_account, '')
		FROM companies
		WHERE name = $1
	`, company).Scan(&d.Currency, &d.DiscountAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyDefaults{}, ErrCompanyNotFound
		}
		return CompanyDefaults{}, err
	}
	return d, nil
}

// DueInvoiceRows prefilters terms with the same due predicate the engine
// applies, widened by the supplier offset override.
func (r *Repository) DueInvoiceRows(ctx context.Context, q DueInvoiceQuery) ([]InvoiceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pi.name, pi.company, pi.supplier, pi.currency,
		       COALESCE(pi.bill_no, ''), COALESCE(pi.contact_person, ''), COALESCE(pi.cost_center, ''),
		       pi.grand_total, COALESCE(pi.rounded_total, 0), pi.outstanding_amount, pi.is_return,
		       pi.on_hold, pi.release_date, COALESCE(pi.hold_comment, ''),
		       ps.due_date, ps.discount_date, COALESCE(ps.discount_type, ''),
		       COALESCE(ps.discount, 0), ps.outstanding
		FROM purchase_invoices pi
		JOIN payment_schedules ps ON ps.parent = pi.name
		LEFT JOIN suppliers s ON s.name = pi.supplier
		WHERE pi.company = $1
		  AND pi.docstatus = 1
		  AND pi.outstanding_amount <> 0
		  AND (
		        pi.is_return
		     OR ps.due_date - COALESCE(NULLIF(s.due_date_offset, 0), $3) < $2
		     OR ($4 AND ps.discount_date IS NOT NULL AND ps.discount_date < $2)
		  )
		ORDER BY ps.due_date, pi.name, ps.idx
	`, q.Company, q.NextRunDate, q.DueDateOffset, q.ClaimDiscount)
	if err != nil {
		return nil, fmt.Errorf("query due invoices: %w", err)
	}
	defer rows.Close()

	var out []InvoiceRow
	for rows.Next() {
		var (
			row          InvoiceRow
			discountType string
		)
		if err := rows.Scan(
			&row.ID, &row.Company, &row.SupplierID, &row.Currency,
			&row.BillNo, &row.ContactPerson, &row.CostCenter,
			&row.GrandTotal, &row.RoundedTotal, &row.OutstandingAmount, &row.IsReturn,
			&row.Hold.OnHold, &row.Hold.ReleaseDate, &row.HoldComment,
			&row.Term.DueDate, &row.Term.DiscountDate, &discountType,
			&row.Term.Discount, &row.Term.OutstandingAmount,
		); err != nil {
			return nil, err
		}
		row.Term.DiscountType = DiscountType(discountType)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Suppliers loads supplier snapshots by id. Unknown ids are omitted.
func (r *Repository) Suppliers(ctx context.Context, ids []string) ([]Supplier, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT name, disabled, on_hold, COALESCE(hold_type, ''), release_date,
		       disable_auto_generate_payment_entry, disable_auto_submit_entries,
		       COALESCE(auto_generate_threshold, 0), COALESCE(auto_submit_threshold, 0),
		       COALESCE(due_date_offset, 0)
		FROM suppliers
		WHERE name = ANY($1)
		ORDER BY name
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(
			&s.ID, &s.Disabled, &s.Hold.OnHold, &s.Hold.HoldType, &s.Hold.ReleaseDate,
			&s.DisableAutoGenerate, &s.DisableAutoSubmit,
			&s.AutoGenerateThreshold, &s.AutoSubmitThreshold, &s.DueDateOffset,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// OutstandingBalances sums debit minus credit on the payable ledger per supplier.
func (r *Repository) OutstandingBalances(ctx context.Context, company string, asOf time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT party, SUM(debit - credit)
		FROM payable_ledger_entries
		WHERE company = $1 AND party_type = 'Supplier' AND posting_date <= $2 AND NOT is_cancelled
		GROUP BY party
	`, company, asOf)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			party   string
			balance decimal.Decimal
		)
		if err := rows.Scan(&party, &balance); err != nil {
			return nil, err
		}
		out[party] = balance
	}
	return out, rows.Err()
}

// DraftIndex loads unsubmitted instructions referencing the given invoices and
// the drafted totals of the given suppliers.
func (r *Repository) DraftIndex(ctx context.Context, company string, suppliers, invoices []string) (DraftIndex, error) {
	idx := DraftIndex{Invoices: map[string]string{}, SupplierTotals: map[string]decimal.Decimal{}}
	if len(invoices) > 0 {
		rows, err := r.pool.Query(ctx, `
			SELECT ref.reference_name, pe.name
			FROM payment_entry_references ref
			JOIN payment_entries pe ON pe.name = ref.parent
			WHERE pe.company = $1 AND pe.docstatus = 0 AND ref.reference_name = ANY($2)
		`, company, invoices)
		if err != nil {
			return idx, fmt.Errorf("query draft references: %w", err)
		}
		for rows.Next() {
			var invoice, entry string
			if err := rows.Scan(&invoice, &entry); err != nil {
				rows.Close()
				return idx, err
			}
			idx.Invoices[invoice] = entry
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return idx, err
		}
	}
	if len(suppliers) > 0 {
		rows, err := r.pool.Query(ctx, `
			SELECT party, SUM(paid_amount)
			FROM payment_entries
			WHERE company = $1 AND docstatus = 0 AND party_type = 'Supplier' AND party = ANY($2)
			GROUP BY party
		`, company, suppliers)
		if err != nil {
			return idx, fmt.Errorf("query draft totals: %w", err)
		}
		for rows.Next() {
			var (
				party string
				total decimal.Decimal
			)
			if err := rows.Scan(&party, &total); err != nil {
				rows.Close()
				return idx, err
			}
			idx.SupplierTotals[party] = total
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return idx, err
		}
	}
	return idx, nil
}

// PartyDetails resolves default bank accounts and primary contacts in one pass.
func (r *Repository) PartyDetails(ctx context.Context, company string, suppliers []string) (map[string]PartyDetail, error) {
	out := make(map[string]PartyDetail, len(suppliers))
	if len(suppliers) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT s.name,
		       COALESCE(ba.name, ''),
		       COALESCE(c.name, ''),
		       COALESCE(c.email_id, '')
		FROM suppliers s
		LEFT JOIN LATERAL (
			SELECT name FROM bank_accounts
			WHERE party_type = 'Supplier' AND party = s.name AND NOT disabled
			ORDER BY is_default DESC, name
			LIMIT 1
		) ba ON TRUE
		LEFT JOIN LATERAL (
			SELECT name, email_id FROM contacts
			WHERE supplier = s.name
			ORDER BY is_primary_contact DESC, name
			LIMIT 1
		) c ON TRUE
		WHERE s.name = ANY($1)
	`, suppliers)
	if err != nil {
		return nil, fmt.Errorf("query party details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			d  PartyDetail
		)
		if err := rows.Scan(&id, &d.BankAccount, &d.ContactPerson, &d.ContactEmail); err != nil {
			return nil, err
		}
		out[id] = d
	}
	return out, rows.Err()
}

// CreateInstruction inserts the payment entry with its references and the
// discount deduction, submitting it when requested.
func (r *Repository) CreateInstruction(ctx context.Context, req InstructionRequest) (Instruction, error) {
	if len(req.References) == 0 {
		return Instruction{}, errors.New("instruction without references")
	}
	name := "ACC-PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	status := InstructionDraft
	docstatus := 0
	if req.Submit {
		status = InstructionSubmitted
		docstatus = 1
	}

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_entries (
				name, company, payment_type, party_type, party, posting_date,
				paid_from, party_bank_account, contact_person, contact_email,
				paid_amount, received_amount, currency, docstatus, status, run_id, created_at)
			VALUES ($1, $2, 'Pay', 'Supplier', $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
				$9, $9, $10, $11, $12, $13, NOW())
		`, name, req.Company, req.Supplier, req.PostingDate, req.BankAccount, req.PartyBankAccount,
			req.ContactPerson, req.ContactEmail, req.PaidAmount, req.Currency, docstatus, status, req.RunID)
		if err != nil {
			return fmt.Errorf("insert payment entry: %w", err)
		}

		batch := &pgx.Batch{}
		for i, ref := range req.References {
			batch.Queue(`
				INSERT INTO payment_entry_references (
					parent, idx, reference_doctype, reference_name, bill_no, due_date,
					total_amount, outstanding_amount, allocated_amount)
				VALUES ($1, $2, 'Purchase Invoice', $3, NULLIF($4, ''), $5, $6, $7, $8)
			`, name, i+1, ref.InvoiceID, ref.BillNo, ref.DueDate, ref.GrandTotal, ref.Outstanding, ref.AllocatedAmount)
		}
		if req.DiscountAmount.IsPositive() {
			batch.Queue(`
				INSERT INTO payment_entry_deductions (parent, account, cost_center, amount, is_exchange_gain_loss)
				VALUES ($1, $2, NULLIF($3, ''), $4, FALSE)
			`, name, req.DiscountAccount, req.CostCenter, req.DiscountAmount)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert payment entry details: %w", err)
		}
		return nil
	})
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{ID: name, Status: status, Currency: req.Currency, PaidAmount: req.PaidAmount}, nil
}
