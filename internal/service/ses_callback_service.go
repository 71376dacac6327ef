package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/repository"
	"github.com/kursadbilgin/notify/internal/ses"
	"go.uber.org/zap"
)

const defaultGraceWindow = 5 * time.Minute

// IngestReason explains an ingest Outcome.
type IngestReason string

const (
	ReasonApplied               IngestReason = "applied"
	ReasonDiscarded             IngestReason = "discarded"
	ReasonAlreadyTerminal       IngestReason = "already_terminal"
	ReasonNotFoundRetryable     IngestReason = "not_found_retryable"
	ReasonNotFoundStale         IngestReason = "not_found_stale"
	ReasonComplaintRecorded     IngestReason = "complaint_recorded"
	ReasonSubscriptionConfirmed IngestReason = "subscription_confirmed"
	ReasonUnsubscribed          IngestReason = "unsubscribed"
	ReasonInvalidPayload        IngestReason = "invalid_payload"
	ReasonUnknownStatus         IngestReason = "unknown_status"
	ReasonError                 IngestReason = "error"
)

// Outcome tells the transport whether an event was consumed and, if not,
// whether sending it again could succeed.
type Outcome struct {
	Accepted  bool
	Retryable bool
	Reason    IngestReason
	Err       error
}

func accept(reason IngestReason) Outcome {
	return Outcome{Accepted: true, Reason: reason}
}

func reject(reason IngestReason, err error) Outcome {
	return Outcome{Reason: reason, Err: err}
}

func retry(reason IngestReason, err error) Outcome {
	return Outcome{Retryable: true, Reason: reason, Err: err}
}

// EnvelopeVerifier checks SNS signatures.
type EnvelopeVerifier interface {
	Verify(ctx context.Context, env *ses.Envelope) error
}

// SubscriptionConfirmer completes an SNS subscription handshake.
type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, env *ses.Envelope) error
}

// ComplaintNotifier forwards complaints to the owning service.
type ComplaintNotifier interface {
	NotifyComplaint(ctx context.Context, complaint *domain.Complaint, n *domain.Notification) error
}

// SESCallbackService ingests SES delivery events delivered through SNS.
type SESCallbackService struct {
	verifier      EnvelopeVerifier
	confirmer     SubscriptionConfirmer
	notifications repository.NotificationRepository
	complaints    repository.ComplaintRepository
	status        StatusApplier
	callbacks     ComplaintNotifier
	metrics       *observability.Metrics
	logger        *zap.Logger
	graceWindow   time.Duration
	now           func() time.Time
}

func NewSESCallbackService(
	verifier EnvelopeVerifier,
	confirmer SubscriptionConfirmer,
	notifications repository.NotificationRepository,
	complaints repository.ComplaintRepository,
	status StatusApplier,
	callbacks ComplaintNotifier,
	graceWindow time.Duration,
	logger *zap.Logger,
) (*SESCallbackService, error) {
	if verifier == nil {
		return nil, fmt.Errorf("envelope verifier is required")
	}
	if notifications == nil || complaints == nil {
		return nil, fmt.Errorf("notification and complaint repositories are required")
	}
	if status == nil {
		return nil, fmt.Errorf("status applier is required")
	}
	if graceWindow <= 0 {
		graceWindow = defaultGraceWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SESCallbackService{
		verifier:      verifier,
		confirmer:     confirmer,
		notifications: notifications,
		complaints:    complaints,
		status:        status,
		callbacks:     callbacks,
		logger:        logger,
		graceWindow:   graceWindow,
		now:           time.Now,
	}, nil
}

func (s *SESCallbackService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Ingest handles one raw SNS HTTP delivery.
func (s *SESCallbackService) Ingest(ctx context.Context, raw []byte) Outcome {
	env, err := ses.ParseEnvelope(raw)
	if err != nil {
		s.logger.Warn("rejecting sns envelope", zap.Error(err))
		return reject(ReasonInvalidPayload, err)
	}

	logger := s.logger.With(
		zap.String("snsMessageId", env.MessageID),
		zap.String("snsType", env.Type),
	)

	if err := s.verifier.Verify(ctx, env); err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			logger.Warn("rejecting sns envelope with bad signature", zap.Error(err))
			return reject(ReasonInvalidPayload, err)
		}
		logger.Error("could not verify sns signature", zap.Error(err))
		return retry(ReasonError, err)
	}

	switch env.Type {
	case ses.TypeSubscriptionConfirmation:
		if s.confirmer == nil {
			return reject(ReasonInvalidPayload, fmt.Errorf("%w: subscriptions are not accepted", domain.ErrInvalidPayload))
		}
		if err := s.confirmer.Confirm(ctx, env); err != nil {
			if errors.Is(err, domain.ErrInvalidPayload) {
				return reject(ReasonInvalidPayload, err)
			}
			logger.Error("sns subscription confirmation failed", zap.Error(err))
			return retry(ReasonError, err)
		}
		logger.Info("sns subscription confirmed", zap.String("topicArn", env.TopicArn))
		return accept(ReasonSubscriptionConfirmed)
	case ses.TypeUnsubscribeConfirmation:
		logger.Info("sns unsubscribe confirmation received", zap.String("topicArn", env.TopicArn))
		return accept(ReasonUnsubscribed)
	}

	return s.process(ctx, env.Message, env.Timestamp)
}

// ProcessMessage handles an SES event that is already trusted, such as the
// synthetic events published by the research-mode simulator.
func (s *SESCallbackService) ProcessMessage(ctx context.Context, message string) Outcome {
	return s.process(ctx, message, "")
}

func (s *SESCallbackService) process(ctx context.Context, raw string, envelopeTimestamp string) Outcome {
	msg, err := ses.ParseMessage(raw)
	if err != nil {
		s.logger.Warn("rejecting ses message", zap.Error(err))
		return reject(ReasonInvalidPayload, err)
	}

	reference := msg.Mail.MessageID
	responseType := msg.ResponseType()
	logger := s.logger.With(
		zap.String("reference", reference),
		zap.String("responseType", responseType),
	)

	if msg.Bounce != nil {
		logger.Info("ses bounce received",
			zap.Any("bounce", msg.RedactedBounce()),
		)
	}

	if responseType == ses.NotificationComplaint {
		return s.handleComplaint(ctx, msg, envelopeTimestamp, logger)
	}

	response, err := ses.ResponseFor(responseType)
	if err != nil {
		logger.Warn("rejecting ses message with unmapped type", zap.Error(err))
		return reject(ReasonUnknownStatus, err)
	}

	n, outcome, ok := s.lookup(ctx, msg, envelopeTimestamp, logger)
	if !ok {
		return outcome
	}

	if !n.Status.AwaitingUpdate() {
		logger.Info("ses event for notification no longer awaiting update",
			zap.String("notificationId", n.ID),
			zap.String("status", n.Status.String()),
		)
		return accept(ReasonAlreadyTerminal)
	}

	result, err := s.status.ApplyNotification(ctx, n, response.Status)
	if err != nil {
		logger.Error("failed to apply ses status", zap.String("notificationId", n.ID), zap.Error(err))
		return retry(ReasonError, err)
	}

	switch result {
	case UpdateApplied:
		s.metrics.IncSESCallback(response.Status.String())
		if n.SentAt != nil {
			s.metrics.ObserveSESCallbackElapsed(s.now().Sub(*n.SentAt))
		}
		logger.Info("ses status applied",
			zap.String("notificationId", n.ID),
			zap.String("status", response.Status.String()),
			zap.String("detail", response.Message),
		)
		return accept(ReasonApplied)
	case UpdateNotFound:
		return retry(ReasonNotFoundRetryable, domain.ErrNotFound)
	default:
		return accept(ReasonDiscarded)
	}
}

func (s *SESCallbackService) handleComplaint(ctx context.Context, msg *ses.Message, envelopeTimestamp string, logger *zap.Logger) Outcome {
	n, outcome, ok := s.lookup(ctx, msg, envelopeTimestamp, logger)
	if !ok {
		return outcome
	}

	complaint := &domain.Complaint{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		ServiceID:      n.ServiceID,
		CreatedAt:      s.now().UTC(),
	}
	if msg.Complaint != nil {
		complaint.FeedbackID = msg.Complaint.FeedbackID
		complaint.ComplaintType = msg.Complaint.ComplaintFeedbackType
		if at, err := time.Parse(time.RFC3339Nano, msg.Complaint.Timestamp); err == nil {
			at = at.UTC()
			complaint.ComplaintDate = &at
		}
	}

	err := s.complaints.Create(ctx, complaint)
	if errors.Is(err, domain.ErrConflict) {
		logger.Info("ses complaint already recorded, discarding redelivery",
			zap.String("notificationId", n.ID),
			zap.String("feedbackId", complaint.FeedbackID),
		)
		return accept(ReasonDiscarded)
	}
	if err != nil {
		logger.Error("failed to record complaint", zap.String("notificationId", n.ID), zap.Error(err))
		return retry(ReasonError, err)
	}

	if s.callbacks != nil {
		if err := s.callbacks.NotifyComplaint(ctx, complaint, n); err != nil {
			logger.Error("failed to enqueue complaint callback",
				zap.String("notificationId", n.ID),
				zap.String("complaintId", complaint.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("ses complaint recorded",
		zap.String("notificationId", n.ID),
		zap.String("complaintId", complaint.ID),
	)
	return accept(ReasonComplaintRecorded)
}

// lookup resolves the notification an event refers to. Events for unknown
// references are retried while they are younger than the grace window,
// since the sending transaction may not have committed yet.
func (s *SESCallbackService) lookup(ctx context.Context, msg *ses.Message, envelopeTimestamp string, logger *zap.Logger) (*domain.Notification, Outcome, bool) {
	n, err := s.notifications.GetByReference(ctx, msg.Mail.MessageID)
	if err == nil {
		return n, Outcome{}, true
	}
	if !errors.Is(err, domain.ErrNotFound) {
		logger.Error("failed to load notification for ses event", zap.Error(err))
		return nil, retry(ReasonError, err), false
	}

	eventTime, ok := msg.EventTime(envelopeTimestamp)
	if !ok {
		eventTime = s.now()
	}
	age := s.now().Sub(eventTime)
	if age < s.graceWindow {
		logger.Warn("notification not found for ses event, will retry", zap.Duration("eventAge", age))
		return nil, retry(ReasonNotFoundRetryable, err), false
	}

	logger.Warn("notification not found for stale ses event, dropping", zap.Duration("eventAge", age))
	return nil, accept(ReasonNotFoundStale), false
}
