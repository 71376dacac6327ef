package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusCreated          Status = "created"
	StatusSending          Status = "sending"
	StatusPending          Status = "pending"
	StatusSent             Status = "sent"
	StatusDelivered        Status = "delivered"
	StatusPermanentFailure Status = "permanent-failure"
	StatusTemporaryFailure Status = "temporary-failure"
	StatusTechnicalFailure Status = "technical-failure"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusSending, StatusPending, StatusSent, StatusDelivered,
		StatusPermanentFailure, StatusTemporaryFailure, StatusTechnicalFailure:
		return true
	}
	return false
}

// AwaitingUpdate reports whether a provider event may still move the status forward.
func (s Status) AwaitingUpdate() bool {
	switch s {
	case StatusSending, StatusPending:
		return true
	}
	return false
}

// AwaitingUpdateStatuses lists the statuses a status update may transition from.
func AwaitingUpdateStatuses() []Status {
	return []Status{StatusSending, StatusPending}
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel is the notification type.
type Channel string

const (
	ChannelSMS    Channel = "sms"
	ChannelEmail  Channel = "email"
	ChannelLetter Channel = "letter"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelLetter:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// KeyType is the kind of API key a notification was created with.
type KeyType string

const (
	KeyTypeNormal KeyType = "normal"
	KeyTypeTeam   KeyType = "team"
	KeyTypeTest   KeyType = "test"
)

func (k KeyType) String() string { return string(k) }

func (k KeyType) IsValid() bool {
	switch k {
	case KeyTypeNormal, KeyTypeTeam, KeyTypeTest:
		return true
	}
	return false
}

// Notification is one message instance owned by a service.
type Notification struct {
	ID              string
	ServiceID       string
	TemplateID      string
	TemplateVersion int
	Channel         Channel
	To              string
	Personalisation map[string]any
	Status          Status
	Reference       *string
	ClientReference *string
	SentAt          *time.Time
	SentBy          *string
	BillableUnits   int
	KeyType         KeyType
	International   bool
	ReplyToText     *string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// Simulated reports whether the notification must not reach a real provider.
func (n *Notification) Simulated(service *Service) bool {
	if n.KeyType == KeyTypeTest {
		return true
	}
	return service != nil && service.ResearchMode
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(n.ServiceID) == "" {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	if strings.TrimSpace(n.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	if n.KeyType != "" && !n.KeyType.IsValid() {
		return fmt.Errorf("%w: invalid key type %q", ErrValidation, n.KeyType)
	}
	return nil
}

// DispatchUpdate is the set of columns written when a notification is handed to a provider.
type DispatchUpdate struct {
	Status        Status
	SentAt        time.Time
	SentBy        string
	BillableUnits int
	Reference     *string
}

// Apply copies the update onto the in-memory notification.
func (u DispatchUpdate) Apply(n *Notification) {
	if n == nil {
		return
	}
	sentAt := u.SentAt
	sentBy := u.SentBy
	n.Status = u.Status
	n.SentAt = &sentAt
	n.SentBy = &sentBy
	n.BillableUnits = u.BillableUnits
	if u.Reference != nil {
		n.Reference = u.Reference
	}
}
