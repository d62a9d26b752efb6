package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/resilient-tech/payments-processor/internal/payments"
)

func newPreviewCommand() *cobra.Command {
	var (
		company     string
		paymentDate string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Classify a company's due invoices without creating payment entries",
		Example: `  payproc preview --company "ACME Corp"
  payproc preview --company "ACME Corp" --payment-date 2025-02-10 --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(paymentDate)
			if err != nil {
				return err
			}
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output %q (table or json)", output)
			}
			services, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			rc, err := services.Payments.Preview(cmd.Context(), company, date)
			if err != nil {
				return err
			}
			if output == "json" {
				return writeJSON(cmd.OutOrStdout(), rc)
			}
			return writeTable(cmd.OutOrStdout(), rc)
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company to preview")
	cmd.Flags().StringVar(&paymentDate, "payment-date", "", "payment date override (YYYY-MM-DD, default: next run date)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, use YYYY-MM-DD: %w", value, err)
	}
	return &t, nil
}

type runSummary struct {
	Company     string                         `json:"company"`
	RunID       string                         `json:"run_id"`
	NextRunDate string                         `json:"next_run_date"`
	Result      *payments.ClassificationResult `json:"result"`
}

func writeJSON(w io.Writer, rc *payments.RunContext) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runSummary{
		Company:     rc.Setting.Company,
		RunID:       rc.ID.String(),
		NextRunDate: rc.NextRunDate.Format(time.DateOnly),
		Result:      rc.Result,
	})
}

func writeTable(w io.Writer, rc *payments.RunContext) error {
	valid, invalid := rc.Result.Counts()
	fmt.Fprintf(w, "Company: %s  Next run: %s  Valid: %d  Invalid: %d\n\n",
		rc.Setting.Company, rc.NextRunDate.Format(time.DateOnly), valid, invalid)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUPPLIER\tINVOICE\tPAY ON\tDUE\tDISCOUNT\tTO PAY\tSTATUS")
	for _, supplier := range rc.Result.ValidSuppliers() {
		for _, inv := range rc.Result.Valid[supplier] {
			status := "draft"
			if inv.AutoSubmit {
				status = "submit"
			}
			if inv.PaymentInstruction != "" {
				status += " " + inv.PaymentInstruction
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", supplier, inv.ID,
				inv.PaymentDate.Format(time.DateOnly), inv.TotalOutstandingDue.StringFixed(2),
				inv.TotalDiscount.StringFixed(2), inv.AmountToPay.StringFixed(2), status)
		}
	}
	for _, supplier := range rc.Result.InvalidSuppliers() {
		for _, inv := range rc.Result.Invalid[supplier] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s %s\n", supplier, inv.ID,
				inv.PaymentDate.Format(time.DateOnly), inv.TotalOutstandingDue.StringFixed(2),
				inv.TotalDiscount.StringFixed(2), inv.AmountToPay.StringFixed(2), inv.ReasonCode, inv.Reason)
		}
	}
	return tw.Flush()
}
