package template

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/kursadbilgin/notify/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\(\(([^()]+)\)\)`)

// SMS is rendered text message content.
type SMS struct {
	Content       string
	FragmentCount int
}

// Email is rendered plain text email content.
type Email struct {
	Subject string
	Body    string
}

// Renderer fills ((placeholder)) fields from personalisation values.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderSMS fills the template and prefixes the service name unless the
// service opted out or a custom sender is used.
func (r *Renderer) RenderSMS(tmpl *domain.Template, values map[string]any, service *domain.Service, sender *string) (SMS, error) {
	if tmpl == nil {
		return SMS{}, fmt.Errorf("%w: template is required", domain.ErrValidation)
	}
	if tmpl.Type != domain.ChannelSMS {
		return SMS{}, fmt.Errorf("%w: template %s is %s, not sms", domain.ErrValidation, tmpl.ID, tmpl.Type)
	}

	content := fill(tmpl.Content, values)
	if service != nil && service.PrefixSMS && (sender == nil || *sender == "") {
		content = addPrefix(content, service.Name)
	}
	content = strings.TrimSpace(content)

	return SMS{
		Content:       content,
		FragmentCount: domain.SMSFragmentCount(content),
	}, nil
}

func (r *Renderer) RenderEmail(tmpl *domain.Template, values map[string]any) (Email, error) {
	if tmpl == nil {
		return Email{}, fmt.Errorf("%w: template is required", domain.ErrValidation)
	}
	if tmpl.Type != domain.ChannelEmail {
		return Email{}, fmt.Errorf("%w: template %s is %s, not email", domain.ErrValidation, tmpl.ID, tmpl.Type)
	}

	return Email{
		Subject: strings.TrimSpace(fill(tmpl.Subject, values)),
		Body:    fill(tmpl.Content, values),
	}, nil
}

// FromAddress formats the sender for a service as an RFC 5322 mailbox, e.g.
// "Service" <service@domain>. Non-ASCII names become RFC 2047 encoded words.
func FromAddress(service *domain.Service, emailDomain string) string {
	addr := mail.Address{Name: service.Name, Address: service.EmailFrom + "@" + emailDomain}
	return addr.String()
}

func addPrefix(body, prefix string) string {
	if prefix == "" {
		return body
	}
	return prefix + ": " + body
}

// fill replaces placeholders case-insensitively. Placeholders without a
// value are left in place.
func fill(content string, values map[string]any) string {
	if len(values) == 0 {
		return content
	}

	normalised := make(map[string]any, len(values))
	for k, v := range values {
		normalised[normaliseKey(k)] = v
	}

	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := normalised[normaliseKey(name)]
		if !ok || value == nil {
			return match
		}
		return fmt.Sprint(value)
	})
}

func normaliseKey(key string) string {
	key = strings.ToLower(key)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
}
