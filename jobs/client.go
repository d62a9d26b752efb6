package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/resilient-tech/payments-processor/internal/notify"
	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/platform/httpx"
)

// manualRunWindow keeps a second manual trigger for the same company from
// queueing while the first one is pending.
const manualRunWindow = 5 * time.Minute

// Ensure implementation
var _ notify.MailQueue = (*Client)(nil)
var _ payments.RunEnqueuer = (*Client)(nil)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueMail implements notify.MailQueue.
func (c *Client) EnqueueMail(ctx context.Context, mail notify.Mail) error {
	task, err := NewSendEmailTask(mail)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	return err
}

// EnqueueRun implements payments.RunEnqueuer.
func (c *Client) EnqueueRun(ctx context.Context, company string) (string, error) {
	task, err := NewPaymentsRunTask(company)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Unique(manualRunWindow))
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", fmt.Errorf("%w: a run for %s is already queued", httpx.ErrDuplicate, company)
		}
		return "", err
	}
	return info.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
