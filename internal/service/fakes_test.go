package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/provider"
	"github.com/kursadbilgin/notify/internal/queue"
	"github.com/kursadbilgin/notify/internal/ratelimit"
	"github.com/kursadbilgin/notify/internal/repository"
	"github.com/kursadbilgin/notify/internal/ses"
)

type fakeNotificationRepo struct {
	getByIDFn                func(ctx context.Context, id string) (*domain.Notification, error)
	getByReferenceFn         func(ctx context.Context, reference string) (*domain.Notification, error)
	markDispatchedFn         func(ctx context.Context, id string, update domain.DispatchUpdate) error
	resetToCreatedFn         func(ctx context.Context, id string, sentBy string) error
	markTechnicalFailureFn   func(ctx context.Context, id string, at time.Time) error
	updateStatusIfAwaitingFn func(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error)
	listStuckCreatedFn       func(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Notification, error)
}

var _ repository.NotificationRepository = (*fakeNotificationRepo)(nil)

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) GetByReference(ctx context.Context, reference string) (*domain.Notification, error) {
	if f.getByReferenceFn != nil {
		return f.getByReferenceFn(ctx, reference)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) MarkDispatched(ctx context.Context, id string, update domain.DispatchUpdate) error {
	if f.markDispatchedFn != nil {
		return f.markDispatchedFn(ctx, id, update)
	}
	return nil
}

func (f *fakeNotificationRepo) ResetToCreated(ctx context.Context, id string, sentBy string) error {
	if f.resetToCreatedFn != nil {
		return f.resetToCreatedFn(ctx, id, sentBy)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkTechnicalFailure(ctx context.Context, id string, at time.Time) error {
	if f.markTechnicalFailureFn != nil {
		return f.markTechnicalFailureFn(ctx, id, at)
	}
	return nil
}

func (f *fakeNotificationRepo) UpdateStatusIfAwaiting(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error) {
	if f.updateStatusIfAwaitingFn != nil {
		return f.updateStatusIfAwaitingFn(ctx, id, status, at)
	}
	return true, nil
}

func (f *fakeNotificationRepo) ListStuckCreated(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Notification, error) {
	if f.listStuckCreatedFn != nil {
		return f.listStuckCreatedFn(ctx, createdBefore, limit)
	}
	return nil, nil
}

// memNotificationStore keeps notifications in memory with the same
// conditional update rules as the gorm repository.
type memNotificationStore struct {
	mu   sync.Mutex
	rows map[string]domain.Notification
}

var _ repository.NotificationRepository = (*memNotificationStore)(nil)

func newMemNotificationStore(notifications ...domain.Notification) *memNotificationStore {
	store := &memNotificationStore{rows: make(map[string]domain.Notification)}
	for _, n := range notifications {
		store.rows[n.ID] = n
	}
	return store
}

func (m *memNotificationStore) get(id string) domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memNotificationStore) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &n, nil
}

func (m *memNotificationStore) GetByReference(ctx context.Context, reference string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.rows {
		if n.Reference != nil && *n.Reference == reference {
			n := n
			return &n, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memNotificationStore) MarkDispatched(ctx context.Context, id string, update domain.DispatchUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.Status != domain.StatusCreated {
		return domain.ErrConflict
	}
	update.Apply(&n)
	m.rows[id] = n
	return nil
}

func (m *memNotificationStore) ResetToCreated(ctx context.Context, id string, sentBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.Status != domain.StatusSending || n.SentBy == nil || *n.SentBy != sentBy {
		return domain.ErrConflict
	}
	n.Status = domain.StatusCreated
	n.SentAt = nil
	n.SentBy = nil
	n.Reference = nil
	n.BillableUnits = 0
	m.rows[id] = n
	return nil
}

func (m *memNotificationStore) MarkTechnicalFailure(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil
	}
	if n.Status == domain.StatusCreated || n.Status.AwaitingUpdate() {
		n.Status = domain.StatusTechnicalFailure
		n.UpdatedAt = &at
		m.rows[id] = n
	}
	return nil
}

func (m *memNotificationStore) UpdateStatusIfAwaiting(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || !n.Status.AwaitingUpdate() {
		return false, nil
	}
	n.Status = status
	n.UpdatedAt = &at
	m.rows[id] = n
	return true, nil
}

func (m *memNotificationStore) ListStuckCreated(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stuck []domain.Notification
	for _, n := range m.rows {
		if n.Status == domain.StatusCreated && !n.CreatedAt.After(createdBefore) {
			stuck = append(stuck, n)
		}
	}
	slices.SortFunc(stuck, func(a, b domain.Notification) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(stuck) > limit {
		stuck = stuck[:limit]
	}
	return stuck, nil
}

type fakeServiceRepo struct {
	getByIDFn func(ctx context.Context, id string) (*domain.Service, error)
}

func (f *fakeServiceRepo) GetByID(ctx context.Context, id string) (*domain.Service, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return &domain.Service{ID: id, Name: "Test Service", Active: true, PrefixSMS: true, EmailFrom: "test.service"}, nil
}

type fakeTemplateRepo struct {
	getVersionFn func(ctx context.Context, id string, version int) (*domain.Template, error)
}

func (f *fakeTemplateRepo) GetVersion(ctx context.Context, id string, version int) (*domain.Template, error) {
	if f.getVersionFn != nil {
		return f.getVersionFn(ctx, id, version)
	}
	return nil, domain.ErrNotFound
}

type fakeCallbackAPIRepo struct {
	getForServiceFn func(ctx context.Context, serviceID string, callbackType domain.CallbackType) (*domain.ServiceCallbackAPI, error)
}

func (f *fakeCallbackAPIRepo) GetForService(ctx context.Context, serviceID string, callbackType domain.CallbackType) (*domain.ServiceCallbackAPI, error) {
	if f.getForServiceFn != nil {
		return f.getForServiceFn(ctx, serviceID, callbackType)
	}
	return nil, domain.ErrNotFound
}

type fakeComplaintRepo struct {
	createFn func(ctx context.Context, c *domain.Complaint) error
}

func (f *fakeComplaintRepo) Create(ctx context.Context, c *domain.Complaint) error {
	if f.createFn != nil {
		return f.createFn(ctx, c)
	}
	return nil
}

type fakeCallbackFailureRepo struct {
	mu       sync.Mutex
	created  []domain.CallbackFailure
	statsFn  func(ctx context.Context, serviceID string, since time.Time) (domain.CallbackFailureStats, error)
	createFn func(ctx context.Context, f *domain.CallbackFailure) error
}

func (f *fakeCallbackFailureRepo) Create(ctx context.Context, failure *domain.CallbackFailure) error {
	f.mu.Lock()
	f.created = append(f.created, *failure)
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, failure)
	}
	return nil
}

func (f *fakeCallbackFailureRepo) StatsForService(ctx context.Context, serviceID string, since time.Time) (domain.CallbackFailureStats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, serviceID, since)
	}
	return domain.CallbackFailureStats{}, nil
}

func (f *fakeCallbackFailureRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type publishedTask struct {
	queue string
	task  queue.Task
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedTask
	publishFn func(ctx context.Context, queueName string, task queue.Task) error
	closeFn   func() error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, task queue.Task) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, task); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.published = append(f.published, publishedTask{queue: queueName, task: task})
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

func (f *fakePublisher) tasks() []publishedTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedTask(nil), f.published...)
}

type fakeProviders struct {
	resolveFn      func(ctx context.Context, channel domain.Channel, international bool) (domain.ProviderDetail, error)
	resolveSMSFn   func(ctx context.Context, international bool) (provider.SMSClient, error)
	resolveEmailFn func(ctx context.Context) (provider.EmailClient, error)
	demoteFn       func(ctx context.Context, identifier string) error
	demoted        []string
}

func (f *fakeProviders) Resolve(ctx context.Context, channel domain.Channel, international bool) (domain.ProviderDetail, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, channel, international)
	}
	identifier := "mmg"
	if channel == domain.ChannelEmail {
		identifier = "ses"
	}
	return domain.ProviderDetail{Identifier: identifier, Channel: channel, Active: true}, nil
}

func (f *fakeProviders) ResolveSMS(ctx context.Context, international bool) (provider.SMSClient, error) {
	if f.resolveSMSFn != nil {
		return f.resolveSMSFn(ctx, international)
	}
	return nil, domain.ErrNoActiveProvider
}

func (f *fakeProviders) ResolveEmail(ctx context.Context) (provider.EmailClient, error) {
	if f.resolveEmailFn != nil {
		return f.resolveEmailFn(ctx)
	}
	return nil, domain.ErrNoActiveProvider
}

func (f *fakeProviders) Demote(ctx context.Context, identifier string) error {
	f.demoted = append(f.demoted, identifier)
	if f.demoteFn != nil {
		return f.demoteFn(ctx, identifier)
	}
	return nil
}

type fakeSMSClient struct {
	name    string
	calls   int
	sendFn  func(ctx context.Context, msg provider.SMSMessage) error
	lastMsg provider.SMSMessage
}

func (f *fakeSMSClient) Name() string { return f.name }

func (f *fakeSMSClient) SendSMS(ctx context.Context, msg provider.SMSMessage) error {
	f.calls++
	f.lastMsg = msg
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return nil
}

type fakeEmailClient struct {
	name    string
	calls   int
	sendFn  func(ctx context.Context, msg provider.EmailMessage) (string, error)
	lastMsg provider.EmailMessage
}

func (f *fakeEmailClient) Name() string { return f.name }

func (f *fakeEmailClient) SendEmail(ctx context.Context, msg provider.EmailMessage) (string, error) {
	f.calls++
	f.lastMsg = msg
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return "ses-message-id", nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
	waitFn  func(ctx context.Context, key string) error
}

var _ ratelimit.RateLimiter = (*fakeRateLimiter)(nil)

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type fakeSimulator struct {
	simulateSMSFn   func(ctx context.Context, n *domain.Notification) error
	simulateEmailFn func(ctx context.Context, n *domain.Notification) error
}

func (f *fakeSimulator) SimulateSMS(ctx context.Context, n *domain.Notification) error {
	if f.simulateSMSFn != nil {
		return f.simulateSMSFn(ctx, n)
	}
	return nil
}

func (f *fakeSimulator) SimulateEmail(ctx context.Context, n *domain.Notification) error {
	if f.simulateEmailFn != nil {
		return f.simulateEmailFn(ctx, n)
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.TaskHandler) error
	closeFn   func() error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.TaskHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeVerifier struct {
	verifyFn func(ctx context.Context, env *ses.Envelope) error
}

func (f *fakeVerifier) Verify(ctx context.Context, env *ses.Envelope) error {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, env)
	}
	return nil
}

type fakeConfirmer struct {
	confirmFn func(ctx context.Context, env *ses.Envelope) error
}

func (f *fakeConfirmer) Confirm(ctx context.Context, env *ses.Envelope) error {
	if f.confirmFn != nil {
		return f.confirmFn(ctx, env)
	}
	return nil
}

type fakeDeliveryStatusNotifier struct {
	mu       sync.Mutex
	notified []domain.Notification
	notifyFn func(ctx context.Context, n *domain.Notification) error
}

func (f *fakeDeliveryStatusNotifier) NotifyDeliveryStatus(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	f.notified = append(f.notified, *n)
	f.mu.Unlock()
	if f.notifyFn != nil {
		return f.notifyFn(ctx, n)
	}
	return nil
}

func strPtr(s string) *string { return &s }
