package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 5

// Outcome observes what happened to failed tasks.
type Outcome interface {
	IncTaskRetried(queue string)
	IncTaskDeadLettered(queue string)
}

type RabbitMQConsumer struct {
	client      *RabbitMQ
	retries     Publisher
	prefetch    int
	maxAttempts int
	outcome     Outcome
	logger      *zap.Logger
}

// NewRabbitMQConsumer builds a consumer. Failed tasks are republished on
// retries to the matching retry queue until maxAttempts is reached.
func NewRabbitMQConsumer(client *RabbitMQ, retries Publisher, prefetch, maxAttempts int, outcome Outcome, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:      client,
		retries:     retries,
		prefetch:    prefetch,
		maxAttempts: maxAttempts,
		outcome:     outcome,
		logger:      logger,
	}
}

func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler TaskHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("task handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer interrupted, reconnecting",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler TaskHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, queue, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handler TaskHandler) error {
	var task Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		c.logger.Warn("rejecting task: invalid JSON",
			zap.Error(err),
			zap.String("queue", queue),
		)
		return c.deadLetter(queue, d)
	}

	if err := task.Validate(); err != nil {
		c.logger.Warn("rejecting task: validation failed",
			zap.Error(err),
			zap.String("queue", queue),
			zap.String("notificationId", task.NotificationID),
		)
		return c.deadLetter(queue, d)
	}

	if d.CorrelationId != "" {
		ctx = observability.WithCorrelationID(ctx, d.CorrelationId)
	}

	err := handler(ctx, task)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			return fmt.Errorf("failed to ack delivery: %w", ackErr)
		}
		return nil
	}

	logger := c.logger.With(
		zap.String("queue", queue),
		zap.String("task", task.Name),
		zap.String("notificationId", task.NotificationID),
		zap.Int("attempt", task.Attempt),
		zap.Error(err),
	)

	if domain.IsFatal(err) {
		logger.Error("task failed permanently")
		return c.deadLetter(queue, d)
	}

	next := task.NextAttempt()
	if next.Attempt >= c.maxAttempts || c.retries == nil {
		logger.Error("task retries exhausted")
		return c.deadLetter(queue, d)
	}

	if pubErr := c.retries.Publish(ctx, RetryQueueName(queue), next); pubErr != nil {
		logger.Warn("failed to schedule retry, requeueing", zap.NamedError("publishError", pubErr))
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
		return nil
	}

	logger.Warn("task failed, retry scheduled")
	if c.outcome != nil {
		c.outcome.IncTaskRetried(queue)
	}
	if ackErr := d.Ack(false); ackErr != nil {
		return fmt.Errorf("failed to ack retried delivery: %w", ackErr)
	}
	return nil
}

func (c *RabbitMQConsumer) deadLetter(queue string, d amqp.Delivery) error {
	if c.outcome != nil {
		c.outcome.IncTaskDeadLettered(queue)
	}
	if err := d.Reject(false); err != nil {
		return fmt.Errorf("failed to reject delivery: %w", err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
