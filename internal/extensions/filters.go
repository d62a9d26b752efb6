// Package extensions holds built-in filters for the payment generation and
// submission extension points.
package extensions

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/resilient-tech/payments-processor/internal/payments"
)

// Reason codes owned by the built-in filters.
const (
	ReasonSupplierDenied     payments.ReasonCode = "4001"
	ReasonBelowSubmitMinimum payments.ReasonCode = "4101"
)

// SupplierDenylist rejects generation for listed suppliers.
type SupplierDenylist struct {
	suppliers map[string]struct{}
}

// NewSupplierDenylist builds a denylist from supplier ids. Blank entries are ignored.
func NewSupplierDenylist(ids []string) *SupplierDenylist {
	d := &SupplierDenylist{suppliers: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			d.suppliers[id] = struct{}{}
		}
	}
	return d
}

// Len reports how many suppliers are denied.
func (d *SupplierDenylist) Len() int {
	return len(d.suppliers)
}

// FilterAutoGenerate implements payments.GenerateFilter.
func (d *SupplierDenylist) FilterAutoGenerate(supplier payments.Supplier, _ payments.Invoice) *payments.Rejection {
	if _, ok := d.suppliers[supplier.ID]; ok {
		return &payments.Rejection{Reason: "Supplier is excluded from automated payments", Code: ReasonSupplierDenied}
	}
	return nil
}

// MinimumAutoSubmit keeps small payments as drafts so they can be batched by hand.
type MinimumAutoSubmit struct {
	minimum decimal.Decimal
}

// NewMinimumAutoSubmit builds the filter. A zero minimum disables it.
func NewMinimumAutoSubmit(minimum decimal.Decimal) *MinimumAutoSubmit {
	return &MinimumAutoSubmit{minimum: minimum}
}

// FilterAutoSubmit implements payments.SubmitFilter.
func (m *MinimumAutoSubmit) FilterAutoSubmit(_ payments.Supplier, invoice payments.Invoice) *payments.Rejection {
	if !m.minimum.IsPositive() || invoice.IsReturn {
		return nil
	}
	if invoice.AmountToPay.LessThan(m.minimum) {
		return &payments.Rejection{
			Reason: "Amount is below the auto submit minimum of " + m.minimum.StringFixed(2),
			Code:   ReasonBelowSubmitMinimum,
		}
	}
	return nil
}

// Set groups the filters to register on the engine.
type Set struct {
	Generate []payments.GenerateFilter
	Submit   []payments.SubmitFilter
}

// Defaults builds the built-in filters from configuration values.
func Defaults(denylist []string, submitMinimum decimal.Decimal) Set {
	var set Set
	if d := NewSupplierDenylist(denylist); d.Len() > 0 {
		set.Generate = append(set.Generate, d)
	}
	if submitMinimum.IsPositive() {
		set.Submit = append(set.Submit, NewMinimumAutoSubmit(submitMinimum))
	}
	return set
}

// Options converts the set to engine options.
func (s Set) Options() []payments.Option {
	return []payments.Option{
		payments.WithGenerateFilters(s.Generate...),
		payments.WithSubmitFilters(s.Submit...),
	}
}
