package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"

	jobmetrics "github.com/resilient-tech/payments-processor/internal/jobs"
)

// MailSender delivers composed messages. *gomail.Dialer satisfies it.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// NewSMTPSender builds an SMTP dialer without credentials, the way the local
// relay expects it.
func NewSMTPSender(host string, port int) *gomail.Dialer {
	return &gomail.Dialer{Host: host, Port: port}
}

// MailJob delivers queued report emails.
type MailJob struct {
	Sender  MailSender
	From    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob wires the mail handler.
func NewMailJob(sender MailSender, from string, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Sender: sender, From: from, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.To) == 0 {
		j.logger().Warn("mail without recipients dropped", slog.String("subject", payload.Subject))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeSendEmail)
	msg := gomail.NewMessage()
	msg.SetHeader("From", j.From)
	msg.SetHeader("To", payload.To...)
	msg.SetHeader("Subject", payload.Subject)
	msg.SetBody("text/html", payload.HTML)

	if err := j.Sender.DialAndSend(msg); err != nil {
		j.logger().Error("send mail", slog.String("subject", payload.Subject), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("mail sent", slog.String("subject", payload.Subject), slog.Int("recipients", len(payload.To)))
	return tracker.End(nil)
}

func (j *MailJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
