package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 4 {
		t.Fatalf("WorkQueueNames len = %d, want 4", len(work))
	}

	expectedDLQ := map[string]struct{}{
		"dlq.send-sms-tasks":    {},
		"dlq.send-email-tasks":  {},
		"dlq.service-callbacks": {},
		"dlq.ses-results":       {},
	}
	for _, name := range DLQNames() {
		if _, ok := expectedDLQ[name]; !ok {
			t.Fatalf("unexpected dlq name: %s", name)
		}
	}

	if got := RetryQueueName(QueueServiceCallbacks); got != "retry.service-callbacks" {
		t.Fatalf("RetryQueueName = %s", got)
	}
}

func TestSendQueueFor(t *testing.T) {
	tests := []struct {
		channel domain.Channel
		want    string
		wantErr bool
	}{
		{channel: domain.ChannelSMS, want: QueueSendSMS},
		{channel: domain.ChannelEmail, want: QueueSendEmail},
		{channel: domain.ChannelLetter, wantErr: true},
	}

	for _, tt := range tests {
		got, err := SendQueueFor(tt.channel)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrUnsupportedChannel) {
				t.Fatalf("SendQueueFor(%s) error = %v", tt.channel, err)
			}
			continue
		}
		if got != tt.want {
			t.Fatalf("SendQueueFor(%s) = %s, want %s", tt.channel, got, tt.want)
		}
	}
}

func TestTaskValidate(t *testing.T) {
	task := Task{Name: TaskDeliverSMS, NotificationID: "n1"}
	if err := task.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	if err := (Task{Name: TaskProcessSESResult, Payload: "{}"}).Validate(); err != nil {
		t.Fatalf("Validate() payload-only task: %v", err)
	}
	if err := (Task{NotificationID: "n1"}).Validate(); err == nil {
		t.Fatal("expected error for missing name")
	}
	if err := (Task{Name: TaskDeliverSMS}).Validate(); err == nil {
		t.Fatal("expected error for task without target")
	}
	if err := (Task{Name: TaskDeliverSMS, NotificationID: "n1", Attempt: -1}).Validate(); err == nil {
		t.Fatal("expected error for negative attempt")
	}
}

func TestRetryQueueArgs(t *testing.T) {
	args := retryQueueArgs(QueueSendEmail, 90*time.Second)
	if args["x-message-ttl"] != int64(90000) {
		t.Fatalf("x-message-ttl = %v", args["x-message-ttl"])
	}
	if args["x-dead-letter-exchange"] != "" || args["x-dead-letter-routing-key"] != QueueSendEmail {
		t.Fatalf("retry queue must dead-letter back to %s: %v", QueueSendEmail, args)
	}

	work := workQueueArgs(QueueSendEmail)
	if work["x-dead-letter-exchange"] != dlxExchangeName {
		t.Fatalf("work queue dlx = %v", work["x-dead-letter-exchange"])
	}
}

type fakeAcknowledger struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error { a.acked++; return nil }
func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}
func (a *fakeAcknowledger) Reject(uint64, bool) error { a.rejected++; return nil }

type fakePublisher struct {
	publishFn func(ctx context.Context, queue string, task Task) error
	queues    []string
	tasks     []Task
}

func (p *fakePublisher) Publish(ctx context.Context, queue string, task Task) error {
	p.queues = append(p.queues, queue)
	p.tasks = append(p.tasks, task)
	if p.publishFn != nil {
		return p.publishFn(ctx, queue, task)
	}
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type countingOutcome struct {
	retried      int
	deadLettered int
}

func (o *countingOutcome) IncTaskRetried(string)      { o.retried++ }
func (o *countingOutcome) IncTaskDeadLettered(string) { o.deadLettered++ }

func delivery(t *testing.T, ack *fakeAcknowledger, task any) amqp.Delivery {
	t.Helper()

	body, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestConsumerHandleDelivery(t *testing.T) {
	t.Parallel()

	base := Task{ID: "t1", Name: TaskDeliverEmail, NotificationID: "n1"}

	tests := []struct {
		name           string
		body           any
		handlerErr     error
		publishErr     error
		wantAcked      int
		wantRejected   int
		wantNacked     int
		wantRetryQueue string
		wantAttempt    int
	}{
		{name: "success acks", body: base, wantAcked: 1},
		{name: "invalid payload is dead-lettered", body: map[string]int{"attempt": 1}, wantRejected: 1},
		{name: "fatal error is dead-lettered", body: base, handlerErr: fmt.Errorf("send: %w", domain.ErrServiceInactive), wantRejected: 1},
		{
			name:           "transient error goes to retry queue",
			body:           base,
			handlerErr:     errors.New("provider timeout"),
			wantAcked:      1,
			wantRetryQueue: "retry.send-email-tasks",
			wantAttempt:    1,
		},
		{
			name:         "exhausted retries are dead-lettered",
			body:         Task{ID: "t1", Name: TaskDeliverEmail, NotificationID: "n1", Attempt: 2},
			handlerErr:   errors.New("provider timeout"),
			wantRejected: 1,
		},
		{
			name:           "retry publish failure requeues",
			body:           base,
			handlerErr:     errors.New("provider timeout"),
			publishErr:     errors.New("broker down"),
			wantNacked:     1,
			wantRetryQueue: "retry.send-email-tasks",
			wantAttempt:    1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			publisher := &fakePublisher{publishFn: func(context.Context, string, Task) error { return tt.publishErr }}
			outcome := &countingOutcome{}
			consumer := NewRabbitMQConsumer(nil, publisher, 1, 3, outcome, nil)
			ack := &fakeAcknowledger{}

			err := consumer.handleDelivery(context.Background(), QueueSendEmail, delivery(t, ack, tt.body), func(context.Context, Task) error {
				return tt.handlerErr
			})
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if ack.acked != tt.wantAcked || ack.rejected != tt.wantRejected || ack.nacked != tt.wantNacked {
				t.Fatalf("acked=%d rejected=%d nacked=%d, want %d/%d/%d",
					ack.acked, ack.rejected, ack.nacked, tt.wantAcked, tt.wantRejected, tt.wantNacked)
			}
			if tt.wantNacked > 0 && !ack.requeue {
				t.Fatal("nack should requeue")
			}
			if outcome.deadLettered != tt.wantRejected {
				t.Fatalf("deadLettered = %d, want %d", outcome.deadLettered, tt.wantRejected)
			}

			if tt.wantRetryQueue == "" {
				if len(publisher.queues) != 0 {
					t.Fatalf("unexpected retry publish to %v", publisher.queues)
				}
				return
			}
			if len(publisher.queues) != 1 || publisher.queues[0] != tt.wantRetryQueue {
				t.Fatalf("retry published to %v, want %s", publisher.queues, tt.wantRetryQueue)
			}
			if publisher.tasks[0].Attempt != tt.wantAttempt {
				t.Fatalf("retry attempt = %d, want %d", publisher.tasks[0].Attempt, tt.wantAttempt)
			}
		})
	}
}

func TestNewPublishing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	task := Task{Name: TaskDeliverSMS, NotificationID: "n1", Attempt: 2}

	tests := []struct {
		name            string
		ctx             context.Context
		wantCorrelation string
	}{
		{name: "falls back to notification id", ctx: context.Background(), wantCorrelation: "n1"},
		{name: "uses request correlation id", ctx: observability.WithCorrelationID(context.Background(), "sns-123"), wantCorrelation: "sns-123"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := newPublishing(tt.ctx, task, now)
			if err != nil {
				t.Fatalf("newPublishing() error = %v", err)
			}

			if msg.CorrelationId != tt.wantCorrelation {
				t.Fatalf("CorrelationId = %q, want %q", msg.CorrelationId, tt.wantCorrelation)
			}
			if msg.MessageId == "" || msg.Type != TaskDeliverSMS || msg.DeliveryMode != amqp.Persistent {
				t.Fatalf("unexpected publishing: %+v", msg)
			}
			if got := msg.Headers[headerAttempt]; got != int32(2) {
				t.Fatalf("attempt header = %v, want 2", got)
			}

			var decoded Task
			if err := json.Unmarshal(msg.Body, &decoded); err != nil {
				t.Fatalf("body is not a task: %v", err)
			}
			if decoded.ID != msg.MessageId || decoded.NotificationID != "n1" {
				t.Fatalf("decoded task = %+v", decoded)
			}
		})
	}
}

func TestNewPublishingRejectsInvalidTask(t *testing.T) {
	t.Parallel()

	if _, err := newPublishing(context.Background(), Task{Name: TaskDeliverSMS}, time.Now()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConsumerRestoresCorrelationID(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitMQConsumer(nil, &fakePublisher{}, 1, 3, nil, nil)
	ack := &fakeAcknowledger{}
	d := delivery(t, ack, Task{ID: "t1", Name: TaskDeliverSMS, NotificationID: "n1"})
	d.CorrelationId = "sns-123"

	var got string
	err := consumer.handleDelivery(context.Background(), QueueSendSMS, d, func(ctx context.Context, _ Task) error {
		got, _ = observability.CorrelationIDFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("handleDelivery() error = %v", err)
	}
	if got != "sns-123" {
		t.Fatalf("correlation id = %q, want sns-123", got)
	}
}
