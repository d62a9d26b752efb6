package payments

// ReasonCode is the stable machine-readable rejection code.
type ReasonCode string

const (
	ReasonSupplierNotFound         ReasonCode = "1000"
	ReasonSupplierDisabled         ReasonCode = "1001"
	ReasonSupplierBlocked          ReasonCode = "1002"
	ReasonAutoGenerateDisabled     ReasonCode = "1003"
	ReasonSupplierDraftExists      ReasonCode = "1004"
	ReasonNoOutstandingBalance     ReasonCode = "1005"
	ReasonGenerateThreshold        ReasonCode = "1006"
	ReasonAutoSubmitDisabled       ReasonCode = "1007"
	ReasonSubmitThreshold          ReasonCode = "1021"
	ReasonInvoiceBlocked           ReasonCode = "2001"
	ReasonForeignCurrency          ReasonCode = "2002"
	ReasonInvoiceDraftExists       ReasonCode = "2003"
	ReasonInstructionCreateFailure ReasonCode = "3001"
)

var reasonMessages = map[ReasonCode]string{
	ReasonSupplierNotFound:         "Supplier not found",
	ReasonSupplierDisabled:         "Supplier is disabled",
	ReasonSupplierBlocked:          "Payments to supplier are blocked",
	ReasonAutoGenerateDisabled:     "Auto generate payment entry is disabled for this supplier",
	ReasonSupplierDraftExists:      "Draft payment entry already exists for this supplier",
	ReasonNoOutstandingBalance:     "Supplier has no outstanding balance",
	ReasonGenerateThreshold:        "Payment generation threshold exceeded",
	ReasonAutoSubmitDisabled:       "Auto submit payment entry is disabled for this supplier",
	ReasonSubmitThreshold:          "Payment submission threshold exceeded",
	ReasonInvoiceBlocked:           "Payment for this invoice is blocked",
	ReasonForeignCurrency:          "Foreign currency invoice",
	ReasonInvoiceDraftExists:       "Draft payment entry already exists for this invoice",
	ReasonInstructionCreateFailure: "Payment Entry creation failed. Please check error logs.",
}

// Message returns the human-readable text for a known code.
func (c ReasonCode) Message() string {
	return reasonMessages[c]
}

// Rejection is a (reason, code) pair produced by a failing rule or extension.
type Rejection struct {
	Reason string     `json:"reason"`
	Code   ReasonCode `json:"reason_code"`
}

// Reject builds a Rejection carrying the standard message for code.
func Reject(code ReasonCode) *Rejection {
	return &Rejection{Reason: code.Message(), Code: code}
}
