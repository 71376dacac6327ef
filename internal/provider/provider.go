package provider

import (
	"context"
	"sync"
)

// SMSMessage is one outbound text message.
type SMSMessage struct {
	To            string
	Content       string
	Reference     string
	Sender        string
	International bool
}

// EmailMessage is one outbound email.
type EmailMessage struct {
	From    string
	To      string
	Subject string
	Body    string
	ReplyTo *string
}

// SMSClient is implemented by SMS providers.
type SMSClient interface {
	Name() string
	SendSMS(ctx context.Context, msg SMSMessage) error
}

// EmailClient is implemented by email providers. SendEmail returns the
// provider-assigned message id that delivery events will reference.
type EmailClient interface {
	Name() string
	SendEmail(ctx context.Context, msg EmailMessage) (string, error)
}

// Clients holds the concrete provider clients keyed by identifier.
type Clients struct {
	mu    sync.RWMutex
	sms   map[string]SMSClient
	email map[string]EmailClient
}

func NewClients() *Clients {
	return &Clients{
		sms:   make(map[string]SMSClient),
		email: make(map[string]EmailClient),
	}
}

func (c *Clients) RegisterSMS(client SMSClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sms[client.Name()] = client
}

func (c *Clients) RegisterEmail(client EmailClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.email[client.Name()] = client
}

func (c *Clients) SMS(identifier string) (SMSClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.sms[identifier]
	return client, ok
}

func (c *Clients) Email(identifier string) (EmailClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.email[identifier]
	return client, ok
}
