package payments

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/resilient-tech/payments-processor/internal/schedule"
)

var hundred = decimal.NewFromInt(100)

// discountApplies reports whether the term's early payment discount can be
// claimed before the next run.
func discountApplies(rc *RunContext, term PaymentTerm) bool {
	return rc.Setting.ClaimEarlyPaymentDiscount &&
		term.DiscountDate != nil &&
		schedule.Day(*term.DiscountDate).Before(rc.NextRunDate)
}

// resolveTerm decides whether a term is due for this run and sets its payment
// date. Returns false when the term is not due yet.
func resolveTerm(rc *RunContext, row InvoiceRow) (PaymentTerm, bool) {
	term := row.Term
	term.DueDate = schedule.Day(term.DueDate)

	switch {
	case row.IsReturn:
		term.PaymentDate = rc.Today()
		return term, true
	case discountApplies(rc, term):
		term.PaymentDate = rc.Schedule.PreviousRunDate(*term.DiscountDate)
		return term, true
	}

	// The offset only widens the due window; the payment date still follows
	// the due date.
	effective := term.DueDate.AddDate(0, 0, -rc.dueDateOffset(row.SupplierID))
	if !effective.Before(rc.NextRunDate) {
		return term, false
	}
	term.PaymentDate = rc.Schedule.PreviousRunDate(term.DueDate)
	return term, true
}

// discountFor computes the term discount on its (possibly adjusted) outstanding.
func discountFor(rc *RunContext, term PaymentTerm) decimal.Decimal {
	if !discountApplies(rc, term) || !term.OutstandingAmount.IsPositive() {
		return decimal.Zero
	}
	switch term.DiscountType {
	case DiscountPercentage:
		return term.OutstandingAmount.Mul(term.Discount).Div(hundred).Round(2)
	case DiscountAmount:
		return term.Discount
	default:
		return decimal.Zero
	}
}

// buildInvoices folds due term rows into invoices. Invoices keep the order in
// which their first due term appears in rows.
func buildInvoices(rc *RunContext, rows []InvoiceRow) []*Invoice {
	byID := make(map[string]*Invoice)
	order := make([]*Invoice, 0)

	for _, row := range rows {
		term, due := resolveTerm(rc, row)
		if !due {
			continue
		}
		inv, ok := byID[row.ID]
		if !ok {
			inv = &Invoice{
				ID:                row.ID,
				Company:           row.Company,
				SupplierID:        row.SupplierID,
				Currency:          row.Currency,
				BillNo:            row.BillNo,
				ContactPerson:     row.ContactPerson,
				CostCenter:        row.CostCenter,
				GrandTotal:        row.GrandTotal,
				RoundedTotal:      row.RoundedTotal,
				OutstandingAmount: row.OutstandingAmount,
				IsReturn:          row.IsReturn,
				Hold:              row.Hold,
				HoldComment:       row.HoldComment,
			}
			byID[row.ID] = inv
			order = append(order, inv)
		}
		inv.Terms = append(inv.Terms, term)
	}

	for _, inv := range order {
		aggregateTerms(rc, inv)
	}
	return order
}

// aggregateTerms merges the due terms of an invoice. Amounts already paid on
// the invoice are absorbed by the earliest terms first; the discount of each
// term is computed on what is left of it.
func aggregateTerms(rc *RunContext, inv *Invoice) {
	sort.SliceStable(inv.Terms, func(i, j int) bool {
		return inv.Terms[i].DueDate.Before(inv.Terms[j].DueDate)
	})

	running := inv.total().Sub(inv.OutstandingAmount).Neg()
	totalDue := decimal.Zero
	totalDiscount := decimal.Zero
	var paymentDate time.Time

	for i := range inv.Terms {
		term := &inv.Terms[i]
		nominal := term.OutstandingAmount
		if running.IsNegative() {
			term.OutstandingAmount = decimal.Max(decimal.Zero, nominal.Add(running))
		}
		term.DiscountAmount = discountFor(rc, *term)

		running = running.Add(nominal)
		totalDue = totalDue.Add(term.OutstandingAmount)
		totalDiscount = totalDiscount.Add(term.DiscountAmount)

		if paymentDate.IsZero() || term.PaymentDate.Before(paymentDate) {
			paymentDate = term.PaymentDate
		}
	}

	inv.TotalOutstandingDue = totalDue
	inv.TotalDiscount = totalDiscount
	inv.PaymentDate = paymentDate
}
