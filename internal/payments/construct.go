package payments

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// construct creates one instruction per supplier when grouping, else one per
// invoice. A failure demotes the failed group and the supplier's remaining
// groups to invalid and the run moves on to the next supplier.
func (e *Engine) construct(ctx context.Context, rc *RunContext) {
	res := rc.Result
	suppliers := res.ValidSuppliers()
	if len(suppliers) == 0 {
		return
	}
	log := e.log().With(slog.String("company", rc.Setting.Company), slog.String("run_id", rc.ID.String()))

	parties, err := e.instructions.PartyDetails(ctx, rc.Setting.Company, suppliers)
	if err != nil {
		log.Warn("party details unavailable", slog.Any("error", err))
		parties = map[string]PartyDetail{}
	}

	for _, supplier := range suppliers {
		groups := groupInvoices(rc.Setting.GroupPaymentsBySupplier, res.Valid[supplier])
		for i, group := range groups {
			req := buildInstructionRequest(rc, supplier, parties[supplier], group)
			ins, err := e.instructions.CreateInstruction(ctx, req)
			if err == nil {
				for _, inv := range group {
					inv.PaymentInstruction = ins.ID
					inv.PaidAmount = inv.AmountToPay
				}
				continue
			}

			var failed []*Invoice
			for _, g := range groups[i:] {
				failed = append(failed, g...)
			}
			cerr := &ConstructionError{Supplier: supplier, Invoices: invoiceIDs(failed), Err: err}
			log.Error("payment instruction construction failed",
				slog.String("supplier", supplier),
				slog.Any("invoices", cerr.Invoices),
				slog.Any("error", cerr))
			res.demote(supplier, failed, Reject(ReasonInstructionCreateFailure))
			break
		}
	}
}

func groupInvoices(grouped bool, invoices []*Invoice) [][]*Invoice {
	if grouped {
		return [][]*Invoice{append([]*Invoice(nil), invoices...)}
	}
	groups := make([][]*Invoice, 0, len(invoices))
	for _, inv := range invoices {
		groups = append(groups, []*Invoice{inv})
	}
	return groups
}

func buildInstructionRequest(rc *RunContext, supplier string, party PartyDetail, group []*Invoice) InstructionRequest {
	req := InstructionRequest{
		Company:          rc.Setting.Company,
		Supplier:         supplier,
		BankAccount:      rc.Setting.BankAccount,
		PartyBankAccount: party.BankAccount,
		ContactPerson:    party.ContactPerson,
		ContactEmail:     party.ContactEmail,
		PostingDate:      rc.Today(),
		Currency:         rc.Defaults.Currency,
		PaidAmount:       decimal.Zero,
		DiscountAmount:   decimal.Zero,
		Submit:           rc.Setting.AutoSubmitEntries,
		RunID:            rc.ID.String(),
	}
	for _, inv := range group {
		if inv.Currency != "" {
			req.Currency = inv.Currency
		}
		if inv.ContactPerson != "" && req.ContactPerson == "" {
			req.ContactPerson = inv.ContactPerson
		}
		if req.CostCenter == "" {
			req.CostCenter = inv.CostCenter
		}
		req.PaidAmount = req.PaidAmount.Add(inv.AmountToPay)
		req.DiscountAmount = req.DiscountAmount.Add(inv.TotalDiscount)
		req.Submit = req.Submit && inv.AutoSubmit
		req.References = append(req.References, InstructionReference{
			InvoiceID:       inv.ID,
			BillNo:          inv.BillNo,
			DueDate:         inv.FirstDueDate(),
			GrandTotal:      inv.GrandTotal,
			Outstanding:     inv.OutstandingAmount,
			AllocatedAmount: inv.AmountToPay.Add(inv.TotalDiscount),
		})
	}
	if req.DiscountAmount.IsPositive() {
		req.DiscountAccount = rc.Defaults.DiscountAccount
	}
	return req
}

func invoiceIDs(invoices []*Invoice) []string {
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	return ids
}
