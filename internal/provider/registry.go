package provider

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify/internal/domain"
	"go.uber.org/zap"
)

// DetailStore reads and toggles provider_details rows.
type DetailStore interface {
	ListByChannel(ctx context.Context, channel domain.Channel) ([]domain.ProviderDetail, error)
	SetActive(ctx context.Context, identifier string, active bool) error
}

// Registry resolves which provider serves a send and demotes failing ones.
type Registry struct {
	store   DetailStore
	clients *Clients
	logger  *zap.Logger
}

func NewRegistry(store DetailStore, clients *Clients, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clients == nil {
		clients = NewClients()
	}
	return &Registry{
		store:   store,
		clients: clients,
		logger:  logger,
	}
}

// Resolve returns the highest priority active provider for the channel.
func (r *Registry) Resolve(ctx context.Context, channel domain.Channel, international bool) (domain.ProviderDetail, error) {
	if channel != domain.ChannelSMS && channel != domain.ChannelEmail {
		return domain.ProviderDetail{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, channel)
	}

	details, err := r.store.ListByChannel(ctx, channel)
	if err != nil {
		return domain.ProviderDetail{}, fmt.Errorf("list providers: %w", err)
	}

	eligible := domain.EligibleProviders(details, channel, international)
	if len(eligible) == 0 {
		return domain.ProviderDetail{}, fmt.Errorf("%w: channel=%s international=%t",
			domain.ErrNoActiveProvider, channel, international)
	}

	return eligible[0], nil
}

func (r *Registry) ResolveSMS(ctx context.Context, international bool) (SMSClient, error) {
	detail, err := r.Resolve(ctx, domain.ChannelSMS, international)
	if err != nil {
		return nil, err
	}

	client, ok := r.clients.SMS(detail.Identifier)
	if !ok {
		return nil, fmt.Errorf("%w: no sms client registered for %q", domain.ErrNoActiveProvider, detail.Identifier)
	}
	return client, nil
}

func (r *Registry) ResolveEmail(ctx context.Context) (EmailClient, error) {
	detail, err := r.Resolve(ctx, domain.ChannelEmail, false)
	if err != nil {
		return nil, err
	}

	client, ok := r.clients.Email(detail.Identifier)
	if !ok {
		return nil, fmt.Errorf("%w: no email client registered for %q", domain.ErrNoActiveProvider, detail.Identifier)
	}
	return client, nil
}

// Demote takes a provider out of rotation. Concurrent demotions are not
// coordinated; the last write wins.
func (r *Registry) Demote(ctx context.Context, identifier string) error {
	if err := r.store.SetActive(ctx, identifier, false); err != nil {
		return fmt.Errorf("demote provider %s: %w", identifier, err)
	}

	r.logger.Warn("provider demoted", zap.String("provider", identifier))
	return nil
}
