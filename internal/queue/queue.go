package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify/internal/domain"
)

// Work queues.
const (
	QueueSendSMS          = "send-sms-tasks"
	QueueSendEmail        = "send-email-tasks"
	QueueServiceCallbacks = "service-callbacks"
	QueueSESResults       = "ses-results"
)

// Publisher publishes tasks to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, task Task) error
	Close() error
}

// TaskHandler handles a consumed task. Returning an error wrapping a fatal
// domain error dead-letters the task; any other error schedules a retry.
type TaskHandler func(ctx context.Context, task Task) error

// Consumer consumes tasks from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler TaskHandler) error
	Close() error
}

var workQueues = []string{
	QueueSendSMS,
	QueueSendEmail,
	QueueServiceCallbacks,
	QueueSESResults,
}

// WorkQueueNames returns all work queues.
func WorkQueueNames() []string {
	return append([]string(nil), workQueues...)
}

// RetryQueueName returns the delay queue for a work queue, e.g. retry.service-callbacks.
func RetryQueueName(queue string) string {
	return fmt.Sprintf("retry.%s", queue)
}

// DLQName returns the dead-letter queue for a work queue, e.g. dlq.send-sms-tasks.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, q := range workQueues {
		queues = append(queues, DLQName(q))
	}
	return queues
}

// SendQueueFor returns the dispatch queue for a channel.
func SendQueueFor(channel domain.Channel) (string, error) {
	switch channel {
	case domain.ChannelSMS:
		return QueueSendSMS, nil
	case domain.ChannelEmail:
		return QueueSendEmail, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, channel)
	}
}
