package payments

import (
	"github.com/shopspring/decimal"
)

// Subject is the context a rule evaluates. Supplier is nil when the invoice
// references an unknown supplier.
type Subject struct {
	Run      *RunContext
	Supplier *Supplier
	Invoice  *Invoice
}

// Rule is one eligibility predicate. A nil Rejection means pass.
type Rule interface {
	Name() string
	Evaluate(Subject) *Rejection
}

type ruleFunc struct {
	name string
	fn   func(Subject) *Rejection
}

func (r ruleFunc) Name() string                  { return r.name }
func (r ruleFunc) Evaluate(s Subject) *Rejection { return r.fn(s) }

// NewRule adapts a function to the Rule interface.
func NewRule(name string, fn func(Subject) *Rejection) Rule {
	return ruleFunc{name: name, fn: fn}
}

// Chain evaluates rules in order and stops at the first rejection.
type Chain []Rule

// Evaluate returns the first rejection and the name of the rule producing it.
func (c Chain) Evaluate(s Subject) (*Rejection, string) {
	for _, rule := range c {
		if rej := rule.Evaluate(s); rej != nil {
			return rej, rule.Name()
		}
	}
	return nil, ""
}

// GenerateFilter is the filter_auto_generate_payments extension point.
type GenerateFilter interface {
	FilterAutoGenerate(supplier Supplier, invoice Invoice) *Rejection
}

// SubmitFilter is the filter_auto_submit_payments extension point.
type SubmitFilter interface {
	FilterAutoSubmit(supplier Supplier, invoice Invoice) *Rejection
}

// GenerateFilterFunc adapts a function to GenerateFilter.
type GenerateFilterFunc func(supplier Supplier, invoice Invoice) *Rejection

func (f GenerateFilterFunc) FilterAutoGenerate(supplier Supplier, invoice Invoice) *Rejection {
	return f(supplier, invoice)
}

// SubmitFilterFunc adapts a function to SubmitFilter.
type SubmitFilterFunc func(supplier Supplier, invoice Invoice) *Rejection

func (f SubmitFilterFunc) FilterAutoSubmit(supplier Supplier, invoice Invoice) *Rejection {
	return f(supplier, invoice)
}

// GenerationChain builds the ordered generation rules. Allocation has a side
// effect on the supplier balance, so it runs only after every cheaper
// disqualifying check has passed.
func GenerationChain(filters []GenerateFilter) Chain {
	chain := Chain{
		NewRule("supplier_exists", supplierExists),
		NewRule("supplier_enabled", supplierEnabled),
		NewRule("supplier_not_blocked", supplierNotBlocked),
		NewRule("supplier_auto_generate", supplierAutoGenerate),
		NewRule("no_draft_instruction", noDraftInstruction),
		NewRule("allocate_outstanding", allocateOutstanding),
		NewRule("generate_threshold", invoiceGenerateThreshold),
		NewRule("invoice_not_blocked", invoiceNotBlocked),
		NewRule("company_currency", companyCurrency),
	}
	for _, f := range filters {
		chain = append(chain, NewRule("generate_extension", func(s Subject) *Rejection {
			return f.FilterAutoGenerate(*s.Supplier, *s.Invoice)
		}))
	}
	return chain
}

// SubmissionChain builds the ordered auto-submit rules.
func SubmissionChain(filters []SubmitFilter) Chain {
	chain := Chain{
		NewRule("supplier_auto_submit", supplierAutoSubmit),
		NewRule("submit_threshold", invoiceSubmitThreshold),
	}
	for _, f := range filters {
		chain = append(chain, NewRule("submit_extension", func(s Subject) *Rejection {
			return f.FilterAutoSubmit(*s.Supplier, *s.Invoice)
		}))
	}
	return chain
}

func supplierExists(s Subject) *Rejection {
	if s.Supplier == nil {
		return Reject(ReasonSupplierNotFound)
	}
	return nil
}

func supplierEnabled(s Subject) *Rejection {
	if s.Supplier.Disabled {
		return Reject(ReasonSupplierDisabled)
	}
	return nil
}

func supplierNotBlocked(s Subject) *Rejection {
	if !s.Run.Setting.IgnoreBlockedSuppliers {
		return nil
	}
	h := s.Supplier.Hold
	if !h.OnHold || (h.HoldType != HoldTypeAll && h.HoldType != HoldTypePayments) {
		return nil
	}
	if h.ReleaseDate == nil || h.pendingRelease(s.Run.Today()) {
		return Reject(ReasonSupplierBlocked)
	}
	return nil
}

func supplierAutoGenerate(s Subject) *Rejection {
	if s.Supplier.DisableAutoGenerate {
		return Reject(ReasonAutoGenerateDisabled)
	}
	return nil
}

func noDraftInstruction(s Subject) *Rejection {
	if _, ok := s.Run.Drafts.Invoices[s.Invoice.ID]; ok {
		return Reject(ReasonInvoiceDraftExists)
	}
	if s.Run.Setting.GroupPaymentsBySupplier && s.Run.Drafts.HasSupplier(s.Supplier.ID) {
		return Reject(ReasonSupplierDraftExists)
	}
	return nil
}

// allocateOutstanding sets amount_to_pay, capping it by the supplier's
// remaining balance when outstanding limiting is on.
func allocateOutstanding(s Subject) *Rejection {
	inv, sup := s.Invoice, s.Supplier
	if inv.allocated {
		return nil
	}
	if !s.Run.Setting.LimitPaymentToOutstanding {
		inv.AmountToPay = inv.TotalOutstandingDue.Sub(inv.TotalDiscount)
		inv.allocated = true
		return nil
	}

	capped := decimal.Min(inv.TotalOutstandingDue, sup.RemainingBalance)
	toPay := capped.Sub(inv.TotalDiscount)
	// A rejected invoice must not consume the supplier's balance.
	if !capped.IsPositive() || !toPay.IsPositive() {
		return Reject(ReasonNoOutstandingBalance)
	}
	sup.RemainingBalance = sup.RemainingBalance.Sub(capped)
	inv.AmountToPay = toPay
	inv.allocated = true
	return nil
}

func invoiceGenerateThreshold(s Subject) *Rejection {
	if s.Run.Setting.GroupPaymentsBySupplier {
		return nil
	}
	limit := effectiveThreshold(s.Supplier.AutoGenerateThreshold, s.Run.Setting.AutoGenerateThreshold)
	if exceedsThreshold(s.Invoice.AmountToPay, limit) {
		return Reject(ReasonGenerateThreshold)
	}
	return nil
}

func invoiceNotBlocked(s Subject) *Rejection {
	if !s.Run.Setting.IgnoreBlockedInvoices {
		return nil
	}
	h := s.Invoice.Hold
	if h.OnHold && (h.ReleaseDate == nil || h.pendingRelease(s.Run.Today())) {
		return Reject(ReasonInvoiceBlocked)
	}
	return nil
}

func companyCurrency(s Subject) *Rejection {
	if !s.Run.Setting.ExcludeForeignCurrencyInvoices {
		return nil
	}
	if s.Invoice.Currency != s.Run.Defaults.Currency {
		return Reject(ReasonForeignCurrency)
	}
	return nil
}

func supplierAutoSubmit(s Subject) *Rejection {
	if s.Supplier.DisableAutoSubmit {
		return Reject(ReasonAutoSubmitDisabled)
	}
	return nil
}

func invoiceSubmitThreshold(s Subject) *Rejection {
	if s.Run.Setting.GroupPaymentsBySupplier {
		return nil
	}
	limit := effectiveThreshold(s.Supplier.AutoSubmitThreshold, s.Run.Setting.AutoSubmitThreshold)
	if exceedsThreshold(s.Invoice.AmountToPay, limit) {
		return Reject(ReasonSubmitThreshold)
	}
	return nil
}
