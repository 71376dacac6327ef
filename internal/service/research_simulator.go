package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/queue"
	"github.com/kursadbilgin/notify/internal/ses"
	"go.uber.org/zap"
)

// Recipients that make simulated sends fail.
const (
	SimulatedSMSTemporaryFailure   = "07700900003"
	SimulatedSMSPermanentFailure   = "07700900002"
	SimulatedEmailTemporaryFailure = "temp-fail@simulator.notify"
	SimulatedEmailPermanentFailure = "perm-fail@simulator.notify"
)

// ResearchSimulator stands in for real providers when a send is simulated.
type ResearchSimulator struct {
	status    StatusApplier
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewResearchSimulator(status StatusApplier, publisher queue.Publisher, logger *zap.Logger) (*ResearchSimulator, error) {
	if status == nil {
		return nil, fmt.Errorf("status applier is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResearchSimulator{
		status:    status,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// SimulateSMS moves the notification straight to its terminal status.
func (s *ResearchSimulator) SimulateSMS(ctx context.Context, n *domain.Notification) error {
	status := simulatedSMSStatus(n.To)
	result, err := s.status.Apply(ctx, ByID(n.ID), status)
	if err != nil {
		return fmt.Errorf("simulate sms: %w", err)
	}

	s.logger.Info("simulated sms delivery",
		zap.String("notificationId", n.ID),
		zap.String("status", status.String()),
		zap.String("result", result.String()),
	)
	return nil
}

// SimulateEmail publishes the SES event a real send would have produced.
func (s *ResearchSimulator) SimulateEmail(ctx context.Context, n *domain.Notification) error {
	if n.Reference == nil || *n.Reference == "" {
		return fmt.Errorf("simulate email: notification %s has no reference", n.ID)
	}

	body, err := json.Marshal(s.simulatedEmailEvent(*n.Reference, n.To))
	if err != nil {
		return fmt.Errorf("simulate email: %w", err)
	}

	err = s.publisher.Publish(ctx, queue.QueueSESResults, queue.Task{
		Name:           queue.TaskProcessSESResult,
		NotificationID: n.ID,
		Payload:        string(body),
	})
	if err != nil {
		return fmt.Errorf("simulate email: %w", err)
	}

	s.logger.Info("simulated email event published",
		zap.String("notificationId", n.ID),
		zap.String("reference", *n.Reference),
	)
	return nil
}

func simulatedSMSStatus(to string) domain.Status {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, to)

	switch {
	case strings.HasSuffix(digits, strings.TrimPrefix(SimulatedSMSTemporaryFailure, "0")):
		return domain.StatusTemporaryFailure
	case strings.HasSuffix(digits, strings.TrimPrefix(SimulatedSMSPermanentFailure, "0")):
		return domain.StatusPermanentFailure
	}
	return domain.StatusDelivered
}

func (s *ResearchSimulator) simulatedEmailEvent(reference, to string) ses.Message {
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	msg := ses.Message{
		Mail: ses.Mail{
			MessageID:   reference,
			Timestamp:   timestamp,
			Source:      "simulator@notify",
			Destination: []string{to},
		},
	}

	switch strings.ToLower(strings.TrimSpace(to)) {
	case SimulatedEmailPermanentFailure:
		msg.NotificationType = ses.NotificationBounce
		msg.Bounce = &ses.Bounce{
			BounceType:        ses.BouncePermanent,
			BounceSubType:     "General",
			BouncedRecipients: []ses.Recipient{{EmailAddress: to, Status: "5.1.1", Action: "failed"}},
			Timestamp:         timestamp,
		}
	case SimulatedEmailTemporaryFailure:
		msg.NotificationType = ses.NotificationBounce
		msg.Bounce = &ses.Bounce{
			BounceType:        "Transient",
			BounceSubType:     "General",
			BouncedRecipients: []ses.Recipient{{EmailAddress: to, Status: "4.4.7", Action: "failed"}},
			Timestamp:         timestamp,
		}
	default:
		msg.NotificationType = ses.NotificationDelivery
		msg.Delivery = &ses.Delivery{
			Timestamp:    timestamp,
			Recipients:   []string{to},
			SMTPResponse: "250 OK",
		}
	}

	return msg
}
