package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/repository"
	"go.uber.org/zap"
)

// UpdateResult is the outcome of a status update.
type UpdateResult int

const (
	UpdateApplied UpdateResult = iota
	UpdateDiscarded
	UpdateNotFound
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateApplied:
		return "applied"
	case UpdateDiscarded:
		return "discarded"
	case UpdateNotFound:
		return "not_found"
	}
	return "unknown"
}

// StatusKey identifies the notification a status update targets.
type StatusKey struct {
	id        string
	reference string
}

func ByID(id string) StatusKey { return StatusKey{id: id} }

func ByReference(reference string) StatusKey { return StatusKey{reference: reference} }

func (k StatusKey) String() string {
	if k.reference != "" {
		return "reference=" + k.reference
	}
	return "id=" + k.id
}

// DeliveryStatusNotifier is told about every applied status change.
type DeliveryStatusNotifier interface {
	NotifyDeliveryStatus(ctx context.Context, n *domain.Notification) error
}

// StatusApplier moves notifications out of the awaiting-update set.
type StatusApplier interface {
	Apply(ctx context.Context, key StatusKey, status domain.Status) (UpdateResult, error)
	ApplyNotification(ctx context.Context, n *domain.Notification, status domain.Status) (UpdateResult, error)
}

type StatusService struct {
	notifications repository.NotificationRepository
	callbacks     DeliveryStatusNotifier
	logger        *zap.Logger
	now           func() time.Time
}

func NewStatusService(
	notifications repository.NotificationRepository,
	callbacks DeliveryStatusNotifier,
	logger *zap.Logger,
) (*StatusService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusService{
		notifications: notifications,
		callbacks:     callbacks,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Apply loads the notification by key and moves it to status when it is
// still awaiting an update.
func (s *StatusService) Apply(ctx context.Context, key StatusKey, status domain.Status) (UpdateResult, error) {
	var (
		n   *domain.Notification
		err error
	)
	if key.reference != "" {
		n, err = s.notifications.GetByReference(ctx, key.reference)
	} else {
		n, err = s.notifications.GetByID(ctx, key.id)
	}
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("status update for unknown notification",
			zap.String("key", key.String()),
			zap.String("status", status.String()),
		)
		return UpdateNotFound, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load notification %s: %w", key, err)
	}

	return s.ApplyNotification(ctx, n, status)
}

// ApplyNotification applies status to an already loaded notification. The
// write is conditional, so a concurrent update that got there first turns
// this one into UpdateDiscarded.
func (s *StatusService) ApplyNotification(ctx context.Context, n *domain.Notification, status domain.Status) (UpdateResult, error) {
	if !status.IsValid() {
		return 0, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	logger := s.logger.With(
		zap.String("notificationId", n.ID),
		zap.String("currentStatus", n.Status.String()),
		zap.String("status", status.String()),
	)

	if !n.Status.AwaitingUpdate() {
		logger.Info("duplicate or out of order status update discarded")
		return UpdateDiscarded, nil
	}

	now := s.now().UTC()
	applied, err := s.notifications.UpdateStatusIfAwaiting(ctx, n.ID, status, now)
	if err != nil {
		return 0, fmt.Errorf("failed to update notification status: %w", err)
	}
	if !applied {
		logger.Info("status update lost race, discarded")
		return UpdateDiscarded, nil
	}

	n.Status = status
	n.UpdatedAt = &now

	if s.callbacks != nil {
		if err := s.callbacks.NotifyDeliveryStatus(ctx, n); err != nil {
			logger.Error("failed to enqueue delivery status callback", zap.Error(err))
		}
	}

	return UpdateApplied, nil
}
