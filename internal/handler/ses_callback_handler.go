package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify/internal/observability"
	"github.com/kursadbilgin/notify/internal/ses"
	"github.com/kursadbilgin/notify/internal/service"
)

const (
	headerSNSMessageType = "x-amz-sns-message-type"
	headerSNSMessageID   = "x-amz-sns-message-id"
)

// SESIngester consumes raw SNS deliveries.
type SESIngester interface {
	Ingest(ctx context.Context, raw []byte) service.Outcome
}

type SESCallbackHandler struct {
	ingester SESIngester
}

func NewSESCallbackHandler(ingester SESIngester) (*SESCallbackHandler, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ses ingester is required")
	}
	return &SESCallbackHandler{ingester: ingester}, nil
}

func RegisterSESCallbackRoutes(router fiber.Router, ingester SESIngester) error {
	h, err := NewSESCallbackHandler(ingester)
	if err != nil {
		return err
	}

	router.Post("/notifications/email/ses", h.HandleSESCallback)
	return nil
}

type sesCallbackResponse struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

// HandleSESCallback answers 200 for anything consumed, including discards,
// 500 when SNS should redeliver and 400 when it should give up.
func (h *SESCallbackHandler) HandleSESCallback(c *fiber.Ctx) error {
	switch c.Get(headerSNSMessageType) {
	case ses.TypeNotification, ses.TypeSubscriptionConfirmation, ses.TypeUnsubscribeConfirmation:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "missing or unknown "+headerSNSMessageType+" header")
	}

	ctx := c.UserContext()
	if id := c.Get(headerSNSMessageID); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}

	// fiber reuses the request buffer once the handler returns.
	raw := append([]byte(nil), c.Body()...)

	outcome := h.ingester.Ingest(ctx, raw)
	switch {
	case outcome.Accepted:
		return c.Status(fiber.StatusOK).JSON(sesCallbackResponse{
			Result: "success",
			Reason: string(outcome.Reason),
		})
	case outcome.Retryable:
		return fiber.NewError(fiber.StatusInternalServerError, outcomeMessage(outcome))
	default:
		return fiber.NewError(fiber.StatusBadRequest, outcomeMessage(outcome))
	}
}

func outcomeMessage(outcome service.Outcome) string {
	if outcome.Err == nil {
		return string(outcome.Reason)
	}
	return fmt.Sprintf("%s: %v", outcome.Reason, outcome.Err)
}
