package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/queue"
	"github.com/kursadbilgin/notify/internal/ses"
)

func TestSimulatedSMSStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		to   string
		want domain.Status
	}{
		{to: "07700900003", want: domain.StatusTemporaryFailure},
		{to: "+44 7700 900003", want: domain.StatusTemporaryFailure},
		{to: "07700900002", want: domain.StatusPermanentFailure},
		{to: "+447700900002", want: domain.StatusPermanentFailure},
		{to: "07700900000", want: domain.StatusDelivered},
		{to: "07700900111", want: domain.StatusDelivered},
	}

	for _, tt := range tests {
		if got := simulatedSMSStatus(tt.to); got != tt.want {
			t.Fatalf("simulatedSMSStatus(%q) = %s, want %s", tt.to, got, tt.want)
		}
	}
}

func TestResearchSimulatorSimulateSMS(t *testing.T) {
	t.Parallel()

	sentAt := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	store := newMemNotificationStore(
		domain.Notification{ID: "n1", To: "07700900002", Channel: domain.ChannelSMS, Status: domain.StatusSending, SentAt: &sentAt},
		domain.Notification{ID: "n2", To: "07700900456", Channel: domain.ChannelSMS, Status: domain.StatusSending, SentAt: &sentAt},
	)
	notifier := &fakeDeliveryStatusNotifier{}
	status, _ := NewStatusService(store, notifier, nil)

	sim, err := NewResearchSimulator(status, &fakePublisher{}, nil)
	if err != nil {
		t.Fatalf("NewResearchSimulator() error = %v", err)
	}

	for _, id := range []string{"n1", "n2"} {
		n := store.get(id)
		if err := sim.SimulateSMS(context.Background(), &n); err != nil {
			t.Fatalf("SimulateSMS(%s) error = %v", id, err)
		}
	}

	if got := store.get("n1").Status; got != domain.StatusPermanentFailure {
		t.Fatalf("n1 status = %s, want permanent-failure", got)
	}
	if got := store.get("n2").Status; got != domain.StatusDelivered {
		t.Fatalf("n2 status = %s, want delivered", got)
	}
	if len(notifier.notified) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(notifier.notified))
	}
}

func TestResearchSimulatorSimulateEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		to             string
		wantResponse   string
		wantBounceType string
	}{
		{to: "jo@example.gov", wantResponse: ses.NotificationDelivery},
		{to: "perm-fail@simulator.notify", wantResponse: ses.BouncePermanent, wantBounceType: ses.BouncePermanent},
		{to: "Temp-Fail@Simulator.Notify", wantResponse: ses.BounceTemporary, wantBounceType: "Transient"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.to, func(t *testing.T) {
			t.Parallel()

			publisher := &fakePublisher{}
			status, _ := NewStatusService(newMemNotificationStore(), nil, nil)
			sim, _ := NewResearchSimulator(status, publisher, nil)

			n := &domain.Notification{ID: "n1", To: tt.to, Channel: domain.ChannelEmail, Reference: strPtr("ref-1")}
			if err := sim.SimulateEmail(context.Background(), n); err != nil {
				t.Fatalf("SimulateEmail() error = %v", err)
			}

			published := publisher.tasks()
			if len(published) != 1 {
				t.Fatalf("published = %d, want 1", len(published))
			}
			if published[0].queue != queue.QueueSESResults || published[0].task.Name != queue.TaskProcessSESResult {
				t.Fatalf("published = %+v", published[0])
			}

			msg, err := ses.ParseMessage(published[0].task.Payload)
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if msg.Mail.MessageID != "ref-1" || msg.ResponseType() != tt.wantResponse {
				t.Fatalf("message = %+v", msg)
			}
			if tt.wantBounceType != "" && (msg.Bounce == nil || msg.Bounce.BounceType != tt.wantBounceType) {
				t.Fatalf("bounce = %+v", msg.Bounce)
			}
			if _, ok := msg.EventTime(""); !ok {
				t.Fatal("simulated event should carry a timestamp")
			}
		})
	}
}

func TestResearchSimulatorSimulateEmailErrors(t *testing.T) {
	t.Parallel()

	status, _ := NewStatusService(newMemNotificationStore(), nil, nil)

	sim, _ := NewResearchSimulator(status, &fakePublisher{}, nil)
	if err := sim.SimulateEmail(context.Background(), &domain.Notification{ID: "n1"}); err == nil {
		t.Fatal("expected error for missing reference")
	}

	brokerErr := errors.New("channel closed")
	failing := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, task queue.Task) error { return brokerErr },
	}
	sim, _ = NewResearchSimulator(status, failing, nil)
	if err := sim.SimulateEmail(context.Background(), &domain.Notification{ID: "n1", Reference: strPtr("r")}); !errors.Is(err, brokerErr) {
		t.Fatalf("SimulateEmail() error = %v, want %v", err, brokerErr)
	}
}
