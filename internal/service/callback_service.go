package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/queue"
	"github.com/kursadbilgin/notify/internal/repository"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DateTimeFormat is the timestamp layout used in service callback bodies.
const DateTimeFormat = "2006-01-02T15:04:05.000000Z"

const (
	defaultCallbackTimeout      = 5 * time.Second
	defaultBreakerFailures      = 5
	defaultBreakerOpenTimeout   = 30 * time.Second
	defaultBreakerCacheSize     = 1024
	callbackOutcomeSuccess      = "success"
	callbackOutcomeRetryable    = "retryable"
	callbackOutcomeDropped      = "dropped"
	callbackOutcomeShortCircuit = "short_circuit"
)

// CallbackConfig tunes outbound webhook delivery.
type CallbackConfig struct {
	Timeout              time.Duration
	RetryableStatusCodes []int
	BreakerFailures      uint32
	BreakerOpenTimeout   time.Duration
}

// DeliveryStatusPayload is the body posted to a delivery_status webhook.
type DeliveryStatusPayload struct {
	ID               string         `json:"id"`
	Reference        *string        `json:"reference"`
	To               string         `json:"to"`
	Status           domain.Status  `json:"status"`
	CreatedAt        string         `json:"created_at"`
	CompletedAt      *string        `json:"completed_at"`
	SentAt           *string        `json:"sent_at"`
	NotificationType domain.Channel `json:"notification_type"`
}

// ComplaintPayload is the body posted to a complaint webhook.
type ComplaintPayload struct {
	NotificationID string  `json:"notification_id"`
	ComplaintID    string  `json:"complaint_id"`
	Reference      *string `json:"reference"`
	To             string  `json:"to"`
	ComplaintDate  *string `json:"complaint_date"`
	ComplaintType  string  `json:"complaint_type,omitempty"`
	FeedbackID     string  `json:"feedback_id,omitempty"`
}

// CallbackTask is what travels, signed, on the service-callbacks queue.
type CallbackTask struct {
	NotificationID string              `json:"notification_id"`
	ServiceID      string              `json:"service_id"`
	CallbackType   domain.CallbackType `json:"callback_type"`
	URL            string              `json:"url"`
	BearerToken    string              `json:"bearer_token"`
	Body           json.RawMessage     `json:"body"`
}

// PayloadSigner signs and verifies task payloads.
type PayloadSigner interface {
	Sign(payload any) (string, error)
	Verify(token string, out any) error
}

type CallbackService struct {
	callbackAPIs repository.CallbackAPIRepository
	failures     repository.CallbackFailureRepository
	publisher    queue.Publisher
	signer       PayloadSigner
	client       *resty.Client
	breakers     *lru.Cache[string, *gobreaker.CircuitBreaker]
	breakerCfg   gobreaker.Settings
	retryable    map[int]struct{}
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

func NewCallbackService(
	callbackAPIs repository.CallbackAPIRepository,
	failures repository.CallbackFailureRepository,
	publisher queue.Publisher,
	signer PayloadSigner,
	client *resty.Client,
	cfg CallbackConfig,
	logger *zap.Logger,
) (*CallbackService, error) {
	if callbackAPIs == nil {
		return nil, fmt.Errorf("callback api repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("payload signer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	if client == nil {
		client = resty.New()
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	codes := cfg.RetryableStatusCodes
	if codes == nil {
		codes = []int{http.StatusRequestTimeout, http.StatusTooManyRequests}
	}
	retryable := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		retryable[code] = struct{}{}
	}

	failuresToTrip := cfg.BreakerFailures
	if failuresToTrip == 0 {
		failuresToTrip = defaultBreakerFailures
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultBreakerOpenTimeout
	}

	breakers, err := lru.New[string, *gobreaker.CircuitBreaker](defaultBreakerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create breaker cache: %w", err)
	}

	s := &CallbackService{
		callbackAPIs: callbackAPIs,
		failures:     failures,
		publisher:    publisher,
		signer:       signer,
		client:       client,
		breakers:     breakers,
		retryable:    retryable,
		logger:       logger,
		now:          time.Now,
	}
	s.breakerCfg = gobreaker.Settings{
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failuresToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("callback circuit breaker state changed",
				zap.String("url", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return s, nil
}

func (s *CallbackService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// NotifyDeliveryStatus enqueues a delivery_status callback when the service registered one.
func (s *CallbackService) NotifyDeliveryStatus(ctx context.Context, n *domain.Notification) error {
	api, err := s.callbackAPIs.GetForService(ctx, n.ServiceID, domain.CallbackTypeDeliveryStatus)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load delivery status callback: %w", err)
	}

	return s.enqueue(ctx, queue.TaskSendDeliveryStatus, api, n.ID, NewDeliveryStatusPayload(n))
}

// NotifyComplaint enqueues a complaint callback when the service registered one.
func (s *CallbackService) NotifyComplaint(ctx context.Context, complaint *domain.Complaint, n *domain.Notification) error {
	api, err := s.callbackAPIs.GetForService(ctx, n.ServiceID, domain.CallbackTypeComplaint)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load complaint callback: %w", err)
	}

	return s.enqueue(ctx, queue.TaskSendComplaint, api, n.ID, NewComplaintPayload(complaint, n))
}

func (s *CallbackService) enqueue(ctx context.Context, taskName string, api *domain.ServiceCallbackAPI, notificationID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode callback body: %w", err)
	}

	token, err := s.signer.Sign(CallbackTask{
		NotificationID: notificationID,
		ServiceID:      api.ServiceID,
		CallbackType:   api.CallbackType,
		URL:            api.URL,
		BearerToken:    api.BearerToken,
		Body:           body,
	})
	if err != nil {
		return err
	}

	err = s.publisher.Publish(ctx, queue.QueueServiceCallbacks, queue.Task{
		Name:           taskName,
		NotificationID: notificationID,
		Payload:        token,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskName, err)
	}
	return nil
}

// Deliver posts a signed callback task to the service. A nil return means
// the task is finished, either delivered or dropped after a non-retryable
// response. Any other error should be retried.
func (s *CallbackService) Deliver(ctx context.Context, token string) error {
	var task CallbackTask
	if err := s.signer.Verify(token, &task); err != nil {
		return err
	}

	logger := s.logger.With(
		zap.String("notificationId", task.NotificationID),
		zap.String("serviceId", task.ServiceID),
		zap.String("callbackType", task.CallbackType.String()),
		zap.String("url", task.URL),
	)

	breaker := s.breakerFor(task.URL)
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, task, logger)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.metrics.IncServiceCallback(task.CallbackType.String(), callbackOutcomeShortCircuit)
		return fmt.Errorf("callback to %s short-circuited: %w", task.URL, err)
	}
	return err
}

func (s *CallbackService) post(ctx context.Context, task CallbackTask, logger *zap.Logger) error {
	started := s.now().UTC()
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(task.BearerToken).
		SetBody([]byte(task.Body)).
		Post(task.URL)
	ended := s.now().UTC()

	if err != nil {
		s.recordFailure(ctx, task, nil, err.Error(), started, ended)
		s.metrics.IncServiceCallback(task.CallbackType.String(), callbackOutcomeRetryable)
		logger.Warn("service callback request failed", zap.Error(err))
		return fmt.Errorf("callback to %s failed: %w", task.URL, err)
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		s.metrics.IncServiceCallback(task.CallbackType.String(), callbackOutcomeSuccess)
		logger.Info("service callback sent", zap.Int("statusCode", status))
		return nil
	}

	message := strings.TrimSpace(resp.String())
	s.recordFailure(ctx, task, &status, message, started, ended)

	if status >= 500 || s.isRetryableStatus(status) {
		s.metrics.IncServiceCallback(task.CallbackType.String(), callbackOutcomeRetryable)
		logger.Warn("service callback returned retryable status", zap.Int("statusCode", status))
		return fmt.Errorf("callback to %s returned status %d", task.URL, status)
	}

	s.metrics.IncServiceCallback(task.CallbackType.String(), callbackOutcomeDropped)
	logger.Warn("service callback rejected, not retrying", zap.Int("statusCode", status))
	return nil
}

func (s *CallbackService) isRetryableStatus(status int) bool {
	_, ok := s.retryable[status]
	return ok
}

func (s *CallbackService) breakerFor(url string) *gobreaker.CircuitBreaker {
	if cb, ok := s.breakers.Get(url); ok {
		return cb
	}
	settings := s.breakerCfg
	settings.Name = url
	cb := gobreaker.NewCircuitBreaker(settings)
	if existing, ok, _ := s.breakers.PeekOrAdd(url, cb); ok {
		return existing
	}
	return cb
}

func (s *CallbackService) recordFailure(ctx context.Context, task CallbackTask, status *int, message string, started, ended time.Time) {
	if s.failures == nil {
		return
	}

	var errText *string
	if message != "" {
		errText = &message
	}
	failure := &domain.CallbackFailure{
		ID:               uuid.NewString(),
		NotificationID:   task.NotificationID,
		ServiceID:        task.ServiceID,
		CallbackType:     task.CallbackType,
		CallbackURL:      task.URL,
		StatusCode:       status,
		Error:            errText,
		AttemptStartedAt: started,
		AttemptEndedAt:   ended,
	}
	if err := s.failures.Create(ctx, failure); err != nil {
		s.logger.Error("failed to record callback failure",
			zap.String("notificationId", task.NotificationID),
			zap.Error(err),
		)
	}
}

// FailureStats reports failed webhook attempts for a service in the current hour.
func (s *CallbackService) FailureStats(ctx context.Context, serviceID string) (domain.CallbackFailureStats, error) {
	if s.failures == nil {
		return domain.CallbackFailureStats{}, nil
	}
	since := s.now().UTC().Truncate(time.Hour)
	return s.failures.StatsForService(ctx, serviceID, since)
}

func NewDeliveryStatusPayload(n *domain.Notification) DeliveryStatusPayload {
	return DeliveryStatusPayload{
		ID:               n.ID,
		Reference:        n.ClientReference,
		To:               n.To,
		Status:           n.Status,
		CreatedAt:        n.CreatedAt.UTC().Format(DateTimeFormat),
		CompletedAt:      formatOptionalTime(n.UpdatedAt),
		SentAt:           formatOptionalTime(n.SentAt),
		NotificationType: n.Channel,
	}
}

func NewComplaintPayload(c *domain.Complaint, n *domain.Notification) ComplaintPayload {
	return ComplaintPayload{
		NotificationID: n.ID,
		ComplaintID:    c.ID,
		Reference:      n.ClientReference,
		To:             n.To,
		ComplaintDate:  formatOptionalTime(c.ComplaintDate),
		ComplaintType:  c.ComplaintType,
		FeedbackID:     c.FeedbackID,
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(DateTimeFormat)
	return &formatted
}
