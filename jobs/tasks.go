package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/resilient-tech/payments-processor/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending report emails.
	TaskTypeSendEmail = "mail:send"
	// TaskPaymentsRun runs the automated supplier payments.
	TaskPaymentsRun = "payments:run"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(mail notify.Mail) (*asynq.Task, error) {
	data, err := json.Marshal(SendEmailPayload{To: mail.To, Subject: mail.Subject, HTML: mail.HTML})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// PaymentsRunPayload scopes a payment run. An empty company runs every
// setting that is due today.
type PaymentsRunPayload struct {
	Company string `json:"company,omitempty"`
}

// NewPaymentsRunTask builds the payment run task.
func NewPaymentsRunTask(company string) (*asynq.Task, error) {
	data, err := json.Marshal(PaymentsRunPayload{Company: company})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentsRun, data), nil
}
