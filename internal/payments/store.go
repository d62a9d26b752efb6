package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DueInvoiceQuery narrows the invoice fetch to terms that may be due.
type DueInvoiceQuery struct {
	Company       string
	NextRunDate   time.Time
	DueDateOffset int
	ClaimDiscount bool
}

// Store is the read side the engine consumes during the Fetching stage.
type Store interface {
	CompanyDefaults(ctx context.Context, company string) (CompanyDefaults, error)
	// DueInvoiceRows returns submitted invoices with nonzero outstanding joined
	// to their payment terms, ordered by term due date ascending.
	DueInvoiceRows(ctx context.Context, q DueInvoiceQuery) ([]InvoiceRow, error)
	Suppliers(ctx context.Context, ids []string) ([]Supplier, error)
	// OutstandingBalances returns the signed payable balance per supplier.
	OutstandingBalances(ctx context.Context, company string, asOf time.Time) (map[string]decimal.Decimal, error)
	DraftIndex(ctx context.Context, company string, suppliers, invoices []string) (DraftIndex, error)
}

// PartyDetail holds the payee data attached to an instruction.
type PartyDetail struct {
	BankAccount   string
	ContactPerson string
	ContactEmail  string
}

// InstructionReference is one invoice settled by an instruction.
type InstructionReference struct {
	InvoiceID       string          `json:"invoice"`
	BillNo          string          `json:"bill_no,omitempty"`
	DueDate         time.Time       `json:"due_date"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	Outstanding     decimal.Decimal `json:"outstanding_amount"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
}

// InstructionRequest is the payload for one payment instruction.
type InstructionRequest struct {
	Company          string                 `json:"company"`
	Supplier         string                 `json:"supplier"`
	BankAccount      string                 `json:"bank_account"`
	PartyBankAccount string                 `json:"party_bank_account,omitempty"`
	ContactPerson    string                 `json:"contact_person,omitempty"`
	ContactEmail     string                 `json:"contact_email,omitempty"`
	PostingDate      time.Time              `json:"posting_date"`
	Currency         string                 `json:"currency"`
	PaidAmount       decimal.Decimal        `json:"paid_amount"`
	DiscountAmount   decimal.Decimal        `json:"discount_amount"`
	DiscountAccount  string                 `json:"discount_account,omitempty"`
	CostCenter       string                 `json:"cost_center,omitempty"`
	References       []InstructionReference `json:"references"`
	Submit           bool                   `json:"submit"`
	RunID            string                 `json:"run_id"`
}

// Instruction statuses.
const (
	InstructionDraft     = "Draft"
	InstructionSubmitted = "Submitted"
)

// Instruction is a constructed payment record.
type Instruction struct {
	ID         string          `json:"name"`
	Status     string          `json:"status"`
	Currency   string          `json:"currency"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
}

// InstructionStore constructs payment instructions after classification.
type InstructionStore interface {
	PartyDetails(ctx context.Context, company string, suppliers []string) (map[string]PartyDetail, error)
	CreateInstruction(ctx context.Context, req InstructionRequest) (Instruction, error)
}
