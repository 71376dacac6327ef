package ses

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
)

// SES notification types plus the bounce reclassifications.
const (
	NotificationBounce    = "Bounce"
	NotificationComplaint = "Complaint"
	NotificationDelivery  = "Delivery"

	BouncePermanent = "Permanent"
	BounceTemporary = "Temporary"
)

// Message is the SES event carried in the SNS Message field.
type Message struct {
	NotificationType string     `json:"notificationType"`
	Mail             Mail       `json:"mail"`
	Bounce           *Bounce    `json:"bounce,omitempty"`
	Complaint        *Complaint `json:"complaint,omitempty"`
	Delivery         *Delivery  `json:"delivery,omitempty"`
}

type Mail struct {
	MessageID   string   `json:"messageId"`
	Timestamp   string   `json:"timestamp,omitempty"`
	Source      string   `json:"source,omitempty"`
	Destination []string `json:"destination,omitempty"`
}

type Recipient struct {
	EmailAddress   string `json:"emailAddress,omitempty"`
	Action         string `json:"action,omitempty"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

type Bounce struct {
	BounceType        string      `json:"bounceType"`
	BounceSubType     string      `json:"bounceSubType,omitempty"`
	BouncedRecipients []Recipient `json:"bouncedRecipients,omitempty"`
	Timestamp         string      `json:"timestamp,omitempty"`
	FeedbackID        string      `json:"feedbackId,omitempty"`
	ReportingMTA      string      `json:"reportingMTA,omitempty"`
}

type Complaint struct {
	ComplainedRecipients  []Recipient `json:"complainedRecipients,omitempty"`
	Timestamp             string      `json:"timestamp,omitempty"`
	FeedbackID            string      `json:"feedbackId"`
	ComplaintFeedbackType string      `json:"complaintFeedbackType,omitempty"`
	ArrivalDate           string      `json:"arrivalDate,omitempty"`
	UserAgent             string      `json:"userAgent,omitempty"`
}

type Delivery struct {
	Timestamp            string   `json:"timestamp,omitempty"`
	ProcessingTimeMillis int64    `json:"processingTimeMillis,omitempty"`
	Recipients           []string `json:"recipients,omitempty"`
	SMTPResponse         string   `json:"smtpResponse,omitempty"`
}

// ParseMessage decodes the inner SES event. Missing notificationType or
// mail.messageId wraps domain.ErrInvalidPayload.
func ParseMessage(raw string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("%w: invalid message JSON: %v", domain.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(msg.NotificationType) == "" {
		return nil, fmt.Errorf("%w: notificationType missing", domain.ErrInvalidPayload)
	}
	if strings.TrimSpace(msg.Mail.MessageID) == "" {
		return nil, fmt.Errorf("%w: mail.messageId missing", domain.ErrInvalidPayload)
	}
	return &msg, nil
}

// ResponseType is the lookup key for the status table. Bounces are
// reclassified as Permanent or Temporary by bounce type.
func (m *Message) ResponseType() string {
	if m.NotificationType != NotificationBounce {
		return m.NotificationType
	}
	if m.Bounce != nil && m.Bounce.BounceType == BouncePermanent {
		return BouncePermanent
	}
	return BounceTemporary
}

// EventTime is when SES observed the event, falling back to the send time
// and then to the SNS envelope timestamp.
func (m *Message) EventTime(envelopeTimestamp string) (time.Time, bool) {
	candidates := make([]string, 0, 3)
	switch {
	case m.Delivery != nil:
		candidates = append(candidates, m.Delivery.Timestamp)
	case m.Bounce != nil:
		candidates = append(candidates, m.Bounce.Timestamp)
	case m.Complaint != nil:
		candidates = append(candidates, m.Complaint.Timestamp)
	}
	candidates = append(candidates, m.Mail.Timestamp, envelopeTimestamp)

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, c); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// RedactedBounce returns a copy of the bounce with recipient addresses removed
// so it can be logged.
func (m *Message) RedactedBounce() *Bounce {
	if m.Bounce == nil {
		return nil
	}
	out := *m.Bounce
	out.BouncedRecipients = make([]Recipient, len(m.Bounce.BouncedRecipients))
	for i, r := range m.Bounce.BouncedRecipients {
		r.EmailAddress = ""
		out.BouncedRecipients[i] = r
	}
	return &out
}

// Response describes how an SES event maps onto a notification status.
type Response struct {
	Message string
	Success bool
	Status  domain.Status
}

var responses = map[string]Response{
	BouncePermanent: {
		Message: "Hard bounced",
		Success: false,
		Status:  domain.StatusPermanentFailure,
	},
	BounceTemporary: {
		Message: "Soft bounced",
		Success: false,
		Status:  domain.StatusTemporaryFailure,
	},
	NotificationDelivery: {
		Message: "Delivered",
		Success: true,
		Status:  domain.StatusDelivered,
	},
	NotificationComplaint: {
		Message: "Complaint",
		Success: true,
		Status:  domain.StatusDelivered,
	},
}

// ResponseFor looks up the status mapping for a response type.
func ResponseFor(responseType string) (Response, error) {
	r, ok := responses[responseType]
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", domain.ErrUnknownStatus, responseType)
	}
	return r, nil
}
