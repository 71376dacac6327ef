package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify/internal/domain"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/provider"
	"github.com/kursadbilgin/notify/internal/ratelimit"
	"github.com/kursadbilgin/notify/internal/repository"
	"github.com/kursadbilgin/notify/internal/template"
	"go.uber.org/zap"
)

// ProviderResolver picks providers and takes failing ones out of rotation.
type ProviderResolver interface {
	Resolve(ctx context.Context, channel domain.Channel, international bool) (domain.ProviderDetail, error)
	ResolveSMS(ctx context.Context, international bool) (provider.SMSClient, error)
	ResolveEmail(ctx context.Context) (provider.EmailClient, error)
	Demote(ctx context.Context, identifier string) error
}

// Simulator produces provider responses for simulated sends.
type Simulator interface {
	SimulateSMS(ctx context.Context, n *domain.Notification) error
	SimulateEmail(ctx context.Context, n *domain.Notification) error
}

type DeliveryService struct {
	notifications repository.NotificationRepository
	services      repository.ServiceRepository
	templates     repository.TemplateRepository
	providers     ProviderResolver
	renderer      *template.Renderer
	simulator     Simulator
	rateLimiter   ratelimit.RateLimiter
	emailDomain   string
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
	newReference  func() string
}

func NewDeliveryService(
	notifications repository.NotificationRepository,
	services repository.ServiceRepository,
	templates repository.TemplateRepository,
	providers ProviderResolver,
	simulator Simulator,
	rateLimiter ratelimit.RateLimiter,
	emailDomain string,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if notifications == nil || services == nil || templates == nil {
		return nil, fmt.Errorf("notification, service and template repositories are required")
	}
	if providers == nil {
		return nil, fmt.Errorf("provider resolver is required")
	}
	if simulator == nil {
		return nil, fmt.Errorf("simulator is required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		notifications: notifications,
		services:      services,
		templates:     templates,
		providers:     providers,
		renderer:      template.NewRenderer(),
		simulator:     simulator,
		rateLimiter:   rateLimiter,
		emailDomain:   emailDomain,
		logger:        logger,
		now:           time.Now,
		newReference:  uuid.NewString,
	}, nil
}

func (s *DeliveryService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Dispatch hands a created notification to its provider. Notifications that
// already left created are ignored, so redelivered tasks are harmless.
func (s *DeliveryService) Dispatch(ctx context.Context, notificationID string) error {
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("notificationId", notificationID))

	n, err := s.notifications.GetByID(ctx, notificationID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("notification not found, skipping dispatch")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load notification: %w", err)
	}

	svc, err := s.services.GetByID(ctx, n.ServiceID)
	if err != nil {
		return fmt.Errorf("failed to load service %s: %w", n.ServiceID, err)
	}

	if !svc.Active {
		if err := s.notifications.MarkTechnicalFailure(ctx, n.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to mark technical failure: %w", err)
		}
		logger.Warn("service inactive, notification failed", zap.String("serviceId", svc.ID))
		return fmt.Errorf("%w: service %s", domain.ErrServiceInactive, svc.ID)
	}

	if n.Status != domain.StatusCreated {
		logger.Info("notification already dispatched, skipping", zap.String("status", n.Status.String()))
		return nil
	}

	switch n.Channel {
	case domain.ChannelSMS, domain.ChannelEmail:
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, n.Channel)
	}

	if err := s.send(ctx, n, svc, logger); err != nil {
		if domain.IsFatal(err) {
			return s.failDispatch(ctx, n, err, logger)
		}
		return err
	}

	s.metrics.ObserveNotificationTotalTime(n.Channel.String(), s.now().Sub(n.CreatedAt))
	return nil
}

func (s *DeliveryService) send(ctx context.Context, n *domain.Notification, svc *domain.Service, logger *zap.Logger) error {
	tmpl, err := s.templates.GetVersion(ctx, n.TemplateID, n.TemplateVersion)
	if err != nil {
		return fmt.Errorf("failed to load template %s v%d: %w", n.TemplateID, n.TemplateVersion, err)
	}

	if n.Simulated(svc) {
		return s.dispatchSimulated(ctx, n, svc, tmpl, logger)
	}
	return s.dispatchLive(ctx, n, svc, tmpl, logger)
}

// failDispatch settles a notification that can never be sent, so the replay
// scanner stops picking it up. A failed mark keeps the row in created and the
// next replay tries again.
func (s *DeliveryService) failDispatch(ctx context.Context, n *domain.Notification, dispatchErr error, logger *zap.Logger) error {
	if err := s.notifications.MarkTechnicalFailure(ctx, n.ID, s.now().UTC()); err != nil {
		logger.Error("failed to mark technical failure", zap.Error(err))
		return errors.Join(dispatchErr, fmt.Errorf("failed to mark technical failure: %w", err))
	}
	logger.Warn("notification cannot be dispatched, marked technical failure", zap.Error(dispatchErr))
	return dispatchErr
}

func (s *DeliveryService) dispatchSimulated(ctx context.Context, n *domain.Notification, svc *domain.Service, tmpl *domain.Template, logger *zap.Logger) error {
	detail, err := s.providers.Resolve(ctx, n.Channel, n.International)
	if err != nil {
		return err
	}

	if _, err := s.render(n, svc, tmpl); err != nil {
		return err
	}

	update := domain.DispatchUpdate{
		Status:        domain.StatusSending,
		SentAt:        s.now().UTC(),
		SentBy:        detail.Identifier,
		BillableUnits: 0,
	}
	if n.Channel == domain.ChannelEmail {
		reference := s.newReference()
		update.Reference = &reference
	}

	if err := s.markDispatched(ctx, n, update); err != nil {
		return err
	}

	if n.Channel == domain.ChannelSMS {
		err = s.simulator.SimulateSMS(ctx, n)
	} else {
		err = s.simulator.SimulateEmail(ctx, n)
	}
	if err != nil {
		resetErr := s.notifications.ResetToCreated(ctx, n.ID, detail.Identifier)
		if errors.Is(resetErr, domain.ErrConflict) {
			logger.Warn("simulated dispatch failed after the notification settled, keeping it", zap.Error(err))
			return nil
		}
		if resetErr != nil {
			logger.Error("failed to roll back simulated dispatch", zap.Error(resetErr))
			return errors.Join(err, resetErr)
		}
		logger.Warn("simulated dispatch failed, rolled back to created", zap.Error(err))
		return err
	}

	logger.Info("notification dispatched to simulator", zap.String("provider", detail.Identifier))
	return nil
}

func (s *DeliveryService) dispatchLive(ctx context.Context, n *domain.Notification, svc *domain.Service, tmpl *domain.Template, logger *zap.Logger) error {
	content, err := s.render(n, svc, tmpl)
	if err != nil {
		return err
	}

	if err := s.rateLimiter.Wait(ctx, n.Channel.String()); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	if n.Channel == domain.ChannelSMS {
		return s.sendSMS(ctx, n, content.sms, logger)
	}
	return s.sendEmail(ctx, n, svc, content.email, logger)
}

func (s *DeliveryService) sendSMS(ctx context.Context, n *domain.Notification, sms template.SMS, logger *zap.Logger) error {
	client, err := s.providers.ResolveSMS(ctx, n.International)
	if err != nil {
		return err
	}

	sender := ""
	if n.ReplyToText != nil {
		sender = *n.ReplyToText
	}

	start := s.now()
	err = client.SendSMS(ctx, provider.SMSMessage{
		To:            n.To,
		Content:       sms.Content,
		Reference:     n.ID,
		Sender:        sender,
		International: n.International,
	})
	s.metrics.ObserveProviderSend(client.Name(), s.now().Sub(start))
	if err != nil {
		return s.providerFailed(ctx, client.Name(), err, logger)
	}

	status := domain.StatusSending
	if n.International {
		status = domain.StatusSent
	}

	if err := s.markDispatched(ctx, n, domain.DispatchUpdate{
		Status:        status,
		SentAt:        s.now().UTC(),
		SentBy:        client.Name(),
		BillableUnits: sms.FragmentCount,
	}); err != nil {
		return err
	}

	logger.Info("sms sent",
		zap.String("provider", client.Name()),
		zap.Int("billableUnits", sms.FragmentCount),
	)
	return nil
}

func (s *DeliveryService) sendEmail(ctx context.Context, n *domain.Notification, svc *domain.Service, email template.Email, logger *zap.Logger) error {
	client, err := s.providers.ResolveEmail(ctx)
	if err != nil {
		return err
	}

	start := s.now()
	reference, err := client.SendEmail(ctx, provider.EmailMessage{
		From:    template.FromAddress(svc, s.emailDomain),
		To:      n.To,
		Subject: email.Subject,
		Body:    email.Body,
		ReplyTo: n.ReplyToText,
	})
	s.metrics.ObserveProviderSend(client.Name(), s.now().Sub(start))
	if err != nil {
		return s.providerFailed(ctx, client.Name(), err, logger)
	}

	if err := s.markDispatched(ctx, n, domain.DispatchUpdate{
		Status:        domain.StatusSending,
		SentAt:        s.now().UTC(),
		SentBy:        client.Name(),
		BillableUnits: 0,
		Reference:     &reference,
	}); err != nil {
		return err
	}

	logger.Info("email sent",
		zap.String("provider", client.Name()),
		zap.String("reference", reference),
	)
	return nil
}

// providerFailed demotes the provider so the retried task fails over.
func (s *DeliveryService) providerFailed(ctx context.Context, identifier string, sendErr error, logger *zap.Logger) error {
	transient := provider.IsTransient(sendErr)
	logger.Warn("provider send failed",
		zap.String("provider", identifier),
		zap.Bool("transient", transient),
		zap.Error(sendErr),
	)
	s.metrics.IncProviderSendFailure(identifier, transient)

	if err := s.providers.Demote(ctx, identifier); err != nil {
		logger.Error("failed to demote provider", zap.String("provider", identifier), zap.Error(err))
	} else {
		s.metrics.IncProviderDemoted(identifier)
	}

	return fmt.Errorf("send via %s: %w", identifier, sendErr)
}

func (s *DeliveryService) markDispatched(ctx context.Context, n *domain.Notification, update domain.DispatchUpdate) error {
	err := s.notifications.MarkDispatched(ctx, n.ID, update)
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("notification %s was dispatched concurrently: %w", n.ID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	update.Apply(n)
	return nil
}

type renderedContent struct {
	sms   template.SMS
	email template.Email
}

func (s *DeliveryService) render(n *domain.Notification, svc *domain.Service, tmpl *domain.Template) (renderedContent, error) {
	if n.Channel == domain.ChannelSMS {
		sms, err := s.renderer.RenderSMS(tmpl, n.Personalisation, svc, n.ReplyToText)
		return renderedContent{sms: sms}, err
	}
	email, err := s.renderer.RenderEmail(tmpl, n.Personalisation)
	return renderedContent{email: email}, err
}
