package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/queue"
	"github.com/kursadbilgin/notify/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultReplayInterval  = 10 * time.Minute
	defaultReplayOlderThan = 4 * time.Hour
	defaultReplayLimit     = 100
)

// ReplayScanner re-enqueues notifications that were created but never
// dispatched, for example because their task was lost with a broker node.
type ReplayScanner struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	olderThan     time.Duration
	limit         int
	now           func() time.Time
}

func NewReplayScanner(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	interval time.Duration,
	olderThan time.Duration,
	limit int,
	logger *zap.Logger,
) (*ReplayScanner, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultReplayInterval
	}
	if olderThan <= 0 {
		olderThan = defaultReplayOlderThan
	}
	if limit <= 0 {
		limit = defaultReplayLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReplayScanner{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		interval:      interval,
		olderThan:     olderThan,
		limit:         limit,
		now:           time.Now,
	}, nil
}

func (s *ReplayScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *ReplayScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scanStuck(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("replay scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanStuck(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("replay scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *ReplayScanner) scanStuck(ctx context.Context) error {
	createdBefore := s.now().UTC().Add(-s.olderThan)
	stuck, err := s.notifications.ListStuckCreated(ctx, createdBefore, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stuck notifications: %w", err)
	}

	if len(stuck) > 0 {
		s.logger.Info("replaying notifications left in created", zap.Int("count", len(stuck)))
	}

	for i := range stuck {
		notification := stuck[i]

		queueName, err := queue.SendQueueFor(notification.Channel)
		if err != nil {
			s.logger.Warn("cannot replay notification",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			continue
		}

		task := queue.Task{
			Name:           deliverTaskName(notification.Channel),
			NotificationID: notification.ID,
		}
		if err := s.publisher.Publish(ctx, queueName, task); err != nil {
			s.logger.Error("failed to enqueue replayed notification",
				zap.String("notificationId", notification.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		s.metrics.IncReplayed(notification.Channel.String())
	}

	return nil
}

func deliverTaskName(channel domain.Channel) string {
	if channel == domain.ChannelEmail {
		return queue.TaskDeliverEmail
	}
	return queue.TaskDeliverSMS
}
