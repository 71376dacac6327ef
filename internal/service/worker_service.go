package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// Dispatcher sends one notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, notificationID string) error
}

// CallbackDeliverer posts one signed service callback.
type CallbackDeliverer interface {
	Deliver(ctx context.Context, token string) error
}

// SESMessageProcessor applies one trusted SES event.
type SESMessageProcessor interface {
	ProcessMessage(ctx context.Context, message string) Outcome
}

type WorkerService struct {
	consumer    queue.Consumer
	dispatcher  Dispatcher
	callbacks   CallbackDeliverer
	sesResults  SESMessageProcessor
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorkerService(
	consumer queue.Consumer,
	dispatcher Dispatcher,
	callbacks CallbackDeliverer,
	sesResults SESMessageProcessor,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil || callbacks == nil || sesResults == nil {
		return nil, fmt.Errorf("dispatcher, callback deliverer and ses processor are required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		dispatcher:  dispatcher,
		callbacks:   callbacks,
		sesResults:  sesResults,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs concurrency consumers per work queue until ctx is cancelled.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	workerID := 0
	for _, queueName := range queueNames {
		for i := 0; i < s.concurrency; i++ {
			workerID++
			queueName := queueName
			id := workerID

			g.Go(func() error {
				s.logger.Info("worker started",
					zap.Int("workerId", id),
					zap.String("queue", queueName),
				)

				err := s.consumer.Consume(groupCtx, queueName, s.handlerFor(queueName))
				if err != nil {
					s.logger.Error("worker stopped with error",
						zap.Int("workerId", id),
						zap.String("queue", queueName),
						zap.Error(err),
					)
					return err
				}

				s.logger.Info("worker stopped",
					zap.Int("workerId", id),
					zap.String("queue", queueName),
				)
				return nil
			})
		}
	}

	return g.Wait()
}

func (s *WorkerService) handlerFor(queueName string) queue.TaskHandler {
	return func(ctx context.Context, task queue.Task) error {
		s.metrics.IncWorkerInFlight(queueName)
		defer s.metrics.DecWorkerInFlight(queueName)

		ctx = observability.WithCorrelationID(ctx, task.ID)
		if task.NotificationID != "" {
			ctx = observability.WithNotificationID(ctx, task.NotificationID)
		}
		return s.processTask(ctx, task)
	}
}

func (s *WorkerService) processTask(ctx context.Context, task queue.Task) error {
	switch task.Name {
	case queue.TaskDeliverSMS, queue.TaskDeliverEmail:
		return s.dispatcher.Dispatch(ctx, task.NotificationID)
	case queue.TaskSendDeliveryStatus, queue.TaskSendComplaint:
		return s.callbacks.Deliver(ctx, task.Payload)
	case queue.TaskProcessSESResult:
		outcome := s.sesResults.ProcessMessage(ctx, task.Payload)
		switch {
		case outcome.Accepted:
			return nil
		case outcome.Retryable:
			return fmt.Errorf("ses result %s: %w", outcome.Reason, outcome.Err)
		default:
			return fmt.Errorf("%w: ses result rejected (%s): %v", domain.ErrInvalidPayload, outcome.Reason, outcome.Err)
		}
	default:
		return fmt.Errorf("%w: unknown task %q", domain.ErrInvalidPayload, task.Name)
	}
}
