package payments

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/resilient-tech/payments-processor/internal/schedule"
)

// Hold types that block supplier payments.
const (
	HoldTypeAll      = "All"
	HoldTypePayments = "Payments"
)

// DiscountType enumerates early payment discount kinds.
type DiscountType string

const (
	DiscountPercentage DiscountType = "Percentage"
	DiscountAmount     DiscountType = "Amount"
)

// Setting is the per-company automation profile. It is read-only during a run.
type Setting struct {
	Company                        string            `json:"company" validate:"required"`
	BankAccount                    string            `json:"bank_account" validate:"required_if=AutoGenerateEntries true"`
	Weekdays                       schedule.Weekdays `json:"weekdays"`
	DueDateOffset                  int               `json:"due_date_offset" validate:"gte=-365,lte=365"`
	Disabled                       bool              `json:"disabled"`
	AutoGenerateEntries            bool              `json:"auto_generate_entries"`
	AutoSubmitEntries              bool              `json:"auto_submit_entries"`
	GroupPaymentsBySupplier        bool              `json:"group_payments_by_supplier"`
	LimitPaymentToOutstanding      bool              `json:"limit_payment_to_outstanding"`
	ClaimEarlyPaymentDiscount      bool              `json:"claim_early_payment_discount"`
	ExcludeForeignCurrencyInvoices bool              `json:"exclude_foreign_currency_invoices"`
	IgnoreBlockedSuppliers         bool              `json:"ignore_blocked_suppliers"`
	IgnoreBlockedInvoices          bool              `json:"ignore_blocked_invoices"`
	AutoGenerateThreshold          decimal.Decimal   `json:"auto_generate_threshold"`
	AutoSubmitThreshold            decimal.Decimal   `json:"auto_submit_threshold"`
	LastExecution                  *time.Time        `json:"last_execution,omitempty"`
}

// Normalize applies the defaults enforced when a setting is saved.
func (s *Setting) Normalize() {
	s.IgnoreBlockedSuppliers = true
	s.IgnoreBlockedInvoices = true
	if !s.AutoGenerateEntries {
		s.AutoSubmitEntries = false
	}
}

// Hold describes a supplier- or invoice-level payment block.
type Hold struct {
	OnHold      bool       `json:"on_hold"`
	HoldType    string     `json:"hold_type,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

// pendingRelease reports whether the hold carries a release date after today.
func (h Hold) pendingRelease(today time.Time) bool {
	return h.ReleaseDate != nil && schedule.Day(*h.ReleaseDate).After(today)
}

// Supplier is a per-run snapshot. RemainingBalance is consumed by the
// allocator and never written back to the store.
type Supplier struct {
	ID                    string          `json:"name"`
	Disabled              bool            `json:"disabled"`
	Hold                  Hold            `json:"hold"`
	DisableAutoGenerate   bool            `json:"disable_auto_generate_payment_entry"`
	DisableAutoSubmit     bool            `json:"disable_auto_submit_entries"`
	AutoGenerateThreshold decimal.Decimal `json:"auto_generate_threshold"`
	AutoSubmitThreshold   decimal.Decimal `json:"auto_submit_threshold"`
	DueDateOffset         int             `json:"due_date_offset"`
	RemainingBalance      decimal.Decimal `json:"remaining_balance"`
}

// PaymentTerm is one installment of an invoice payment schedule.
type PaymentTerm struct {
	DueDate           time.Time       `json:"due_date"`
	DiscountDate      *time.Time      `json:"discount_date,omitempty"`
	DiscountType      DiscountType    `json:"discount_type,omitempty"`
	Discount          decimal.Decimal `json:"discount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	PaymentDate       time.Time       `json:"payment_date"`
}

// InvoiceRow is one invoice joined to one of its payment terms, as returned
// by the store ordered by term due date.
type InvoiceRow struct {
	ID                string
	Company           string
	SupplierID        string
	Currency          string
	BillNo            string
	ContactPerson     string
	CostCenter        string
	GrandTotal        decimal.Decimal
	RoundedTotal      decimal.Decimal
	OutstandingAmount decimal.Decimal
	IsReturn          bool
	Hold              Hold
	HoldComment       string
	Term              PaymentTerm
}

// Invoice is the normalized per-run invoice model. Computed and
// classification fields are filled progressively by the pipeline.
type Invoice struct {
	ID                string          `json:"name"`
	Company           string          `json:"company"`
	SupplierID        string          `json:"supplier"`
	Currency          string          `json:"currency"`
	BillNo            string          `json:"bill_no,omitempty"`
	ContactPerson     string          `json:"contact_person,omitempty"`
	CostCenter        string          `json:"cost_center,omitempty"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	RoundedTotal      decimal.Decimal `json:"rounded_total"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	IsReturn          bool            `json:"is_return"`
	Hold              Hold            `json:"hold"`
	HoldComment       string          `json:"hold_comment,omitempty"`
	Terms             []PaymentTerm   `json:"payment_terms"`

	TotalOutstandingDue decimal.Decimal `json:"total_outstanding_due"`
	TotalDiscount       decimal.Decimal `json:"total_discount"`
	AmountToPay         decimal.Decimal `json:"amount_to_pay"`
	PaymentDate         time.Time       `json:"payment_date"`

	AutoGenerate bool       `json:"auto_generate"`
	AutoSubmit   bool       `json:"auto_submit"`
	Reason       string     `json:"reason,omitempty"`
	ReasonCode   ReasonCode `json:"reason_code,omitempty"`

	PaymentInstruction string          `json:"payment_entry,omitempty"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`

	allocated bool
}

// Invoice total used to derive the amount already paid.
func (inv *Invoice) total() decimal.Decimal {
	if !inv.RoundedTotal.IsZero() {
		return inv.RoundedTotal
	}
	return inv.GrandTotal
}

// FirstDueDate returns the earliest due date among the due terms.
func (inv *Invoice) FirstDueDate() time.Time {
	if len(inv.Terms) == 0 {
		return time.Time{}
	}
	return inv.Terms[0].DueDate
}

func (inv *Invoice) reject(r *Rejection) {
	inv.Reason = r.Reason
	inv.ReasonCode = r.Code
}

// ClassificationResult partitions invoices per supplier into valid and invalid.
type ClassificationResult struct {
	Valid   map[string][]*Invoice `json:"valid"`
	Invalid map[string][]*Invoice `json:"invalid"`

	validOrder []string
}

// NewClassificationResult returns an empty result.
func NewClassificationResult() *ClassificationResult {
	return &ClassificationResult{
		Valid:   make(map[string][]*Invoice),
		Invalid: make(map[string][]*Invoice),
	}
}

func (r *ClassificationResult) addValid(inv *Invoice) {
	if _, ok := r.Valid[inv.SupplierID]; !ok {
		r.validOrder = append(r.validOrder, inv.SupplierID)
	}
	r.Valid[inv.SupplierID] = append(r.Valid[inv.SupplierID], inv)
}

func (r *ClassificationResult) addInvalid(inv *Invoice, rej *Rejection) {
	inv.reject(rej)
	inv.AutoGenerate = false
	inv.AutoSubmit = false
	r.Invalid[inv.SupplierID] = append(r.Invalid[inv.SupplierID], inv)
}

// demote moves the given valid invoices of a supplier to invalid. Invoices of
// the supplier not listed stay valid.
func (r *ClassificationResult) demote(supplier string, invoices []*Invoice, rej *Rejection) {
	moved := make(map[*Invoice]struct{}, len(invoices))
	for _, inv := range invoices {
		moved[inv] = struct{}{}
	}
	kept := r.Valid[supplier][:0]
	for _, inv := range r.Valid[supplier] {
		if _, ok := moved[inv]; ok {
			r.addInvalid(inv, rej)
			continue
		}
		kept = append(kept, inv)
	}
	if len(kept) == 0 {
		delete(r.Valid, supplier)
		return
	}
	r.Valid[supplier] = kept
}

// ValidSuppliers returns suppliers with valid invoices in first-classified order.
func (r *ClassificationResult) ValidSuppliers() []string {
	out := make([]string, 0, len(r.Valid))
	for _, id := range r.validOrder {
		if _, ok := r.Valid[id]; ok {
			out = append(out, id)
		}
	}
	// Results decoded from JSON carry no order.
	if len(out) != len(r.Valid) {
		out = out[:0]
		for id := range r.Valid {
			out = append(out, id)
		}
		sort.Strings(out)
	}
	return out
}

// InvalidSuppliers returns suppliers with invalid invoices sorted by id.
func (r *ClassificationResult) InvalidSuppliers() []string {
	out := make([]string, 0, len(r.Invalid))
	for id := range r.Invalid {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Counts returns the number of valid and invalid invoices.
func (r *ClassificationResult) Counts() (valid, invalid int) {
	for _, list := range r.Valid {
		valid += len(list)
	}
	for _, list := range r.Invalid {
		invalid += len(list)
	}
	return valid, invalid
}

// CompanyDefaults carries the company-level values a run depends on.
type CompanyDefaults struct {
	Currency        string
	DiscountAccount string
}

// DraftIndex lists unsubmitted payment instructions known before a run.
type DraftIndex struct {
	// Invoices maps an invoice id to the draft instruction referencing it.
	Invoices map[string]string
	// SupplierTotals holds the drafted paid amount per supplier.
	SupplierTotals map[string]decimal.Decimal
}

// HasSupplier reports whether any draft exists for the supplier.
func (d DraftIndex) HasSupplier(id string) bool {
	_, ok := d.SupplierTotals[id]
	return ok
}
