package domain

import "time"

// Service is the government service that owns notifications.
type Service struct {
	ID           string
	Name         string
	Active       bool
	ResearchMode bool
	PrefixSMS    bool
	EmailFrom    string
}

// Template is one version of a notification template.
type Template struct {
	ID      string
	Version int
	Type    Channel
	Subject string
	Content string
}

// CallbackType distinguishes the webhooks a service can register.
type CallbackType string

const (
	CallbackTypeDeliveryStatus CallbackType = "delivery_status"
	CallbackTypeComplaint      CallbackType = "complaint"
)

func (c CallbackType) String() string { return string(c) }

func (c CallbackType) IsValid() bool {
	switch c {
	case CallbackTypeDeliveryStatus, CallbackTypeComplaint:
		return true
	}
	return false
}

// ServiceCallbackAPI is a webhook registered by a service.
type ServiceCallbackAPI struct {
	ID           string
	ServiceID    string
	CallbackType CallbackType
	URL          string
	BearerToken  string
}

// Complaint is recorded once per inbound complaint event.
type Complaint struct {
	ID             string
	NotificationID string
	ServiceID      string
	FeedbackID     string
	ComplaintType  string
	ComplaintDate  *time.Time
	CreatedAt      time.Time
}

// CallbackFailure records one failed outbound webhook attempt.
type CallbackFailure struct {
	ID               string
	NotificationID   string
	ServiceID        string
	CallbackType     CallbackType
	CallbackURL      string
	StatusCode       *int
	Error            *string
	AttemptStartedAt time.Time
	AttemptEndedAt   time.Time
}

const (
	callbackFailingMinNotifications = 50
	callbackFailingMaxFailures      = 500
)

// CallbackFailureStats summarises failed webhook attempts for a service.
type CallbackFailureStats struct {
	TotalFailureCount       int64
	FailedNotificationCount int64
}

// Failing reports whether a service's webhook should be considered broken.
func (s CallbackFailureStats) Failing() bool {
	if s.FailedNotificationCount < callbackFailingMinNotifications {
		return false
	}
	return s.TotalFailureCount > callbackFailingMaxFailures
}
