package payments

import "github.com/shopspring/decimal"

// effectiveThreshold prefers a positive supplier override over the global value.
func effectiveThreshold(override, global decimal.Decimal) decimal.Decimal {
	if override.IsPositive() {
		return override
	}
	return global
}

// exceedsThreshold treats a zero or negative threshold as no limit.
func exceedsThreshold(amount, threshold decimal.Decimal) bool {
	return threshold.IsPositive() && amount.GreaterThan(threshold)
}

func sumAmountToPay(invoices []*Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.AmountToPay)
	}
	return total
}

// reevaluateGroups demotes every valid invoice of a supplier whose grouped
// amount exceeds the generation threshold.
func reevaluateGroups(rc *RunContext) {
	res := rc.Result
	for _, id := range res.ValidSuppliers() {
		sup := rc.Suppliers[id]
		limit := effectiveThreshold(sup.AutoGenerateThreshold, rc.Setting.AutoGenerateThreshold)
		group := res.Valid[id]
		if exceedsThreshold(sumAmountToPay(group), limit) {
			res.demote(id, append([]*Invoice(nil), group...), Reject(ReasonGenerateThreshold))
		}
	}
}

// reevaluateGroupSubmission clears auto_submit for every invoice of a supplier
// whose grouped amount exceeds the submission threshold. Invoices stay valid.
func reevaluateGroupSubmission(rc *RunContext) {
	res := rc.Result
	for _, id := range res.ValidSuppliers() {
		sup := rc.Suppliers[id]
		limit := effectiveThreshold(sup.AutoSubmitThreshold, rc.Setting.AutoSubmitThreshold)
		group := res.Valid[id]
		if !exceedsThreshold(sumAmountToPay(group), limit) {
			continue
		}
		rej := Reject(ReasonSubmitThreshold)
		for _, inv := range group {
			if inv.AutoSubmit {
				inv.AutoSubmit = false
				inv.reject(rej)
			}
		}
	}
}
