// Package notify renders payment run reports and hands them to the mail queue.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/web"
)

const reportTemplate = "payment_report"

// ValidRow is one payment instruction, or one supplier when nothing was built.
type ValidRow struct {
	Supplier     string
	PaymentEntry string
	PaidAmount   string
	Invoices     string
	AutoSubmit   bool
}

// InvalidRow is one rejected invoice.
type InvalidRow struct {
	Supplier string
	Invoice  string
	Amount   string
	Code     string
	Reason   string
}

// ReportData feeds the report template.
type ReportData struct {
	Title       string
	Company     string
	RunDate     string
	NextRunDate string
	Valid       []ValidRow
	Invalid     []InvalidRow
}

// Renderer builds report HTML from a classification result.
type Renderer struct {
	tmpl    *template.Template
	printer *message.Printer
}

// NewRenderer parses the embedded report template.
func NewRenderer(lang language.Tag) (*Renderer, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/email/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, printer: message.NewPrinter(lang)}, nil
}

// Build flattens a result into report rows. Suppliers are listed in order;
// invoices sharing an instruction form one row.
func (r *Renderer) Build(company string, runDate, nextRunDate time.Time, res *payments.ClassificationResult) ReportData {
	data := ReportData{
		Title:   fmt.Sprintf("Auto Payments Report: %s", company),
		Company: company,
		RunDate: runDate.Format(time.DateOnly),
	}
	if !nextRunDate.IsZero() {
		data.NextRunDate = nextRunDate.Format(time.DateOnly)
	}

	for _, supplier := range res.ValidSuppliers() {
		var (
			order []string
			rows  = map[string]*validAccumulator{}
		)
		for _, inv := range res.Valid[supplier] {
			key := inv.PaymentInstruction
			acc, ok := rows[key]
			if !ok {
				acc = &validAccumulator{currency: inv.Currency, total: decimal.Zero, autoSubmit: true}
				rows[key] = acc
				order = append(order, key)
			}
			acc.invoices = append(acc.invoices, inv.ID)
			acc.total = acc.total.Add(paidOrDue(inv))
			acc.autoSubmit = acc.autoSubmit && inv.AutoSubmit
		}
		for _, key := range order {
			acc := rows[key]
			data.Valid = append(data.Valid, ValidRow{
				Supplier:     supplier,
				PaymentEntry: key,
				PaidAmount:   r.FormatAmount(acc.currency, acc.total),
				Invoices:     strings.Join(acc.invoices, ", "),
				AutoSubmit:   acc.autoSubmit,
			})
		}
	}

	for _, supplier := range res.InvalidSuppliers() {
		for _, inv := range res.Invalid[supplier] {
			amount := inv.AmountToPay
			if amount.IsZero() {
				amount = inv.TotalOutstandingDue.Sub(inv.TotalDiscount)
			}
			data.Invalid = append(data.Invalid, InvalidRow{
				Supplier: supplier,
				Invoice:  inv.ID,
				Amount:   r.FormatAmount(inv.Currency, amount),
				Code:     string(inv.ReasonCode),
				Reason:   inv.Reason,
			})
		}
	}
	return data
}

type validAccumulator struct {
	currency   string
	invoices   []string
	total      decimal.Decimal
	autoSubmit bool
}

func paidOrDue(inv *payments.Invoice) decimal.Decimal {
	if inv.PaymentInstruction != "" && !inv.PaidAmount.IsZero() {
		return inv.PaidAmount
	}
	return inv.AmountToPay
}

// Render executes the report template.
func (r *Renderer) Render(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, reportTemplate, data); err != nil {
		return "", fmt.Errorf("notify: render report: %w", err)
	}
	return buf.String(), nil
}

// FormatAmount prints an amount with two decimals and locale grouping,
// prefixed by the ISO code when it is known.
func (r *Renderer) FormatAmount(code string, amount decimal.Decimal) string {
	formatted := r.printer.Sprint(number.Decimal(amount.Round(2).InexactFloat64(), number.Scale(2)))
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String() + " " + formatted
	}
	return formatted
}
