package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

const headerAttempt = "x-notify-attempt"

// RabbitMQPublisher publishes tasks on the default exchange, routed by queue name.
type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, task Task) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}

	msg, err := newPublishing(ctx, task, time.Now().UTC())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish task %s to queue %q: %w", msg.Type, queue, err)
	}

	return nil
}

// newPublishing builds a persistent message. The correlation id is the
// request's when one is in ctx, otherwise the notification id.
func newPublishing(ctx context.Context, task Task, now time.Time) (amqp.Publishing, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if err := task.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid task: %w", err)
	}

	body, err := json.Marshal(task)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal task: %w", err)
	}

	correlationID, ok := observability.CorrelationIDFromContext(ctx)
	if !ok {
		correlationID = task.NotificationID
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now,
		MessageId:     task.ID,
		CorrelationId: correlationID,
		Type:          task.Name,
		Headers:       amqp.Table{headerAttempt: int32(task.Attempt)},
		Body:          body,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
