package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSMSTimeout = 10 * time.Second

type smsRequest struct {
	To        string `json:"to"`
	Content   string `json:"content"`
	Reference string `json:"reference"`
	Sender    string `json:"sender,omitempty"`
}

// HTTPSMSClient posts SMS requests to a JSON aggregator endpoint. Delivery
// receipts come back asynchronously keyed by the reference it was given.
type HTTPSMSClient struct {
	name     string
	client   *resty.Client
	endpoint string
}

func NewHTTPSMSClient(name, endpoint string) (*HTTPSMSClient, error) {
	client := resty.New()
	client.SetTimeout(defaultSMSTimeout)
	client.SetRetryCount(0)

	return NewHTTPSMSClientWithClient(name, endpoint, client)
}

func NewHTTPSMSClientWithClient(name, endpoint string, client *resty.Client) (*HTTPSMSClient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("sms provider name is required")
	}
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("sms provider endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid sms provider endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSMSTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPSMSClient{
		name:     name,
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *HTTPSMSClient) Name() string { return p.name }

func (p *HTTPSMSClient) SendSMS(ctx context.Context, msg SMSMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("provider is not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return &ProviderError{Provider: p.name, Message: "recipient is required"}
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(smsRequest{
			To:        msg.To,
			Content:   msg.Content,
			Reference: msg.Reference,
			Sender:    msg.Sender,
		}).
		Post(p.endpoint)
	if err != nil {
		return requestError(p.name, "sms request failed", err)
	}
	if response == nil {
		return &ProviderError{Provider: p.name, Message: "empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return statusError(p.name, statusCode, providerErrorMessage(statusCode, strings.TrimSpace(response.String())), nil)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
