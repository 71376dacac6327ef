package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify/internal/domain"
)

type CallbackFailureStatsReader interface {
	FailureStats(ctx context.Context, serviceID string) (domain.CallbackFailureStats, error)
}

type CallbackFailureHandler struct {
	stats CallbackFailureStatsReader
}

func NewCallbackFailureHandler(stats CallbackFailureStatsReader) (*CallbackFailureHandler, error) {
	if stats == nil {
		return nil, fmt.Errorf("callback failure stats reader is required")
	}
	return &CallbackFailureHandler{stats: stats}, nil
}

func RegisterCallbackFailureRoutes(router fiber.Router, stats CallbackFailureStatsReader) error {
	h, err := NewCallbackFailureHandler(stats)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/services/:serviceId/callback-failures", h.GetCallbackFailureStats)
	return nil
}

type callbackFailureStatsResponse struct {
	ServiceID               string `json:"serviceId"`
	TotalFailureCount       int64  `json:"totalFailureCount"`
	FailedNotificationCount int64  `json:"failedNotificationCount"`
	Failing                 bool   `json:"failing"`
}

func (h *CallbackFailureHandler) GetCallbackFailureStats(c *fiber.Ctx) error {
	serviceID := strings.TrimSpace(c.Params("serviceId"))
	if serviceID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "serviceId is required")
	}

	stats, err := h.stats.FailureStats(c.UserContext(), serviceID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(callbackFailureStatsResponse{
		ServiceID:               serviceID,
		TotalFailureCount:       stats.TotalFailureCount,
		FailedNotificationCount: stats.FailedNotificationCount,
		Failing:                 stats.Failing(),
	})
}
