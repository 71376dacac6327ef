package ses

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kursadbilgin/notify/internal/domain"
)

// SNS message types.
const (
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeNotification             = "Notification"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Envelope is the outer SNS HTTP delivery document.
type Envelope struct {
	Type             string `json:"Type" validate:"required,oneof=SubscriptionConfirmation Notification UnsubscribeConfirmation"`
	MessageID        string `json:"MessageId" validate:"required"`
	Token            string `json:"Token,omitempty" validate:"required_if=Type SubscriptionConfirmation"`
	TopicArn         string `json:"TopicArn" validate:"required"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message" validate:"required"`
	Timestamp        string `json:"Timestamp" validate:"required"`
	SignatureVersion string `json:"SignatureVersion" validate:"required,oneof=1 2"`
	Signature        string `json:"Signature" validate:"required,base64"`
	SigningCertURL   string `json:"SigningCertURL" validate:"required,url"`
	SubscribeURL     string `json:"SubscribeURL,omitempty" validate:"required_if=Type SubscriptionConfirmation"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
}

var validate = validator.New()

// ParseEnvelope decodes and validates the outer document. Every failure
// wraps domain.ErrInvalidPayload.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidPayload, err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", domain.ErrInvalidPayload, err)
	}
	return &env, nil
}

// stringToSign builds the canonical form SNS signs for each message type.
func (e *Envelope) stringToSign() string {
	type pair struct{ key, value string }

	var fields []pair
	switch e.Type {
	case TypeNotification:
		fields = []pair{
			{"Message", e.Message},
			{"MessageId", e.MessageID},
		}
		if e.Subject != "" {
			fields = append(fields, pair{"Subject", e.Subject})
		}
		fields = append(fields,
			pair{"Timestamp", e.Timestamp},
			pair{"TopicArn", e.TopicArn},
			pair{"Type", e.Type},
		)
	default:
		fields = []pair{
			{"Message", e.Message},
			{"MessageId", e.MessageID},
			{"SubscribeURL", e.SubscribeURL},
			{"Timestamp", e.Timestamp},
			{"Token", e.Token},
			{"TopicArn", e.TopicArn},
			{"Type", e.Type},
		}
	}

	var out []byte
	for _, f := range fields {
		out = append(out, f.key...)
		out = append(out, '\n')
		out = append(out, f.value...)
		out = append(out, '\n')
	}
	return string(out)
}
