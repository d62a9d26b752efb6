package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resilient-tech/payments-processor/internal/payments"
)

// ErrNoRecipients is returned when nobody holds the notification role.
var ErrNoRecipients = errors.New("no report recipients")

// Mail is a rendered message ready for delivery.
type Mail struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// MailQueue accepts mail for asynchronous delivery.
type MailQueue interface {
	EnqueueMail(ctx context.Context, mail Mail) error
}

// RecipientSource resolves the addresses holding a role in a company.
type RecipientSource interface {
	Recipients(ctx context.Context, company, role string) ([]string, error)
}

// Notifier dispatches run reports.
type Notifier struct {
	renderer   *Renderer
	recipients RecipientSource
	queue      MailQueue
	role       string
	logger     *slog.Logger
}

// NewNotifier builds a Notifier sending to holders of role.
func NewNotifier(renderer *Renderer, recipients RecipientSource, queue MailQueue, role string, logger *slog.Logger) *Notifier {
	return &Notifier{renderer: renderer, recipients: recipients, queue: queue, role: role, logger: logger}
}

// NotifyRun renders the run report and queues it. Errors never touch the
// classification.
func (n *Notifier) NotifyRun(ctx context.Context, rc *payments.RunContext) error {
	company := rc.Setting.Company
	valid, invalid := rc.Result.Counts()
	if valid+invalid == 0 {
		n.log().Debug("nothing to report", slog.String("company", company))
		return nil
	}

	to, err := n.recipients.Recipients(ctx, company, n.role)
	if err != nil {
		return fmt.Errorf("notify: recipients: %w", err)
	}
	if len(to) == 0 {
		return fmt.Errorf("%w: role %q in %s", ErrNoRecipients, n.role, company)
	}

	data := n.renderer.Build(company, rc.Today(), time.Time{}, rc.Result)
	html, err := n.renderer.Render(data)
	if err != nil {
		return err
	}
	mail := Mail{
		To:      to,
		Subject: fmt.Sprintf("Auto Payments Report: %s (%s)", company, rc.Today().Format(time.DateOnly)),
		HTML:    html,
	}
	if err := n.queue.EnqueueMail(ctx, mail); err != nil {
		return fmt.Errorf("notify: enqueue mail: %w", err)
	}
	n.log().Info("payment report queued",
		slog.String("company", company),
		slog.Int("recipients", len(to)),
		slog.Int("valid", valid),
		slog.Int("invalid", invalid))
	return nil
}

func (n *Notifier) log() *slog.Logger {
	if n.logger != nil {
		return n.logger
	}
	return slog.Default()
}

// PDFClient converts HTML into a PDF document.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// PDFRenderer renders upcoming payment reports as PDF.
type PDFRenderer struct {
	renderer *Renderer
	client   PDFClient
	clock    func() time.Time
}

// NewPDFRenderer builds a PDFRenderer.
func NewPDFRenderer(renderer *Renderer, client PDFClient) *PDFRenderer {
	return &PDFRenderer{
		renderer: renderer,
		client:   client,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RenderPDF implements payments.ReportRenderer.
func (p *PDFRenderer) RenderPDF(ctx context.Context, company string, result *payments.ClassificationResult) ([]byte, error) {
	data := p.renderer.Build(company, p.clock(), time.Time{}, result)
	data.Title = fmt.Sprintf("Upcoming Invoice Payments: %s", company)
	html, err := p.renderer.Render(data)
	if err != nil {
		return nil, err
	}
	return p.client.RenderHTML(ctx, html)
}

// PGRecipients resolves recipients from the users and user_roles tables.
type PGRecipients struct {
	pool *pgxpool.Pool
}

// NewPGRecipients builds a PGRecipients.
func NewPGRecipients(pool *pgxpool.Pool) *PGRecipients {
	return &PGRecipients{pool: pool}
}

// Recipients returns enabled users holding role, either company-wide or
// scoped to company.
func (p *PGRecipients) Recipients(ctx context.Context, company, role string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT u.email
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE ur.role = $1
		  AND u.enabled
		  AND (ur.company IS NULL OR ur.company = $2)
		ORDER BY u.email
	`, role, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
