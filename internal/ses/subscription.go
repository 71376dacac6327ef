package ses

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify/internal/domain"
)

// SubscriptionConfirmer completes the SNS subscription handshake.
type SubscriptionConfirmer struct {
	client *resty.Client
}

func NewSubscriptionConfirmer(client *resty.Client) *SubscriptionConfirmer {
	if client == nil {
		client = resty.New()
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultFetchTimeout)
	}
	return &SubscriptionConfirmer{client: client}
}

func (c *SubscriptionConfirmer) Confirm(ctx context.Context, env *Envelope) error {
	u, err := url.Parse(env.SubscribeURL)
	if err != nil || u.Scheme != "https" || !snsHostPattern.MatchString(u.Hostname()) {
		return fmt.Errorf("%w: untrusted subscribe url %q", domain.ErrInvalidPayload, env.SubscribeURL)
	}

	resp, err := c.client.R().SetContext(ctx).Get(env.SubscribeURL)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode())
	}
	return nil
}
