package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pulseboard/backend/internal/analytics"
)

type AnalyticsHandler struct {
	service *analytics.Service
}

func NewAnalyticsHandler(service *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.Context(), currentUser(c), analytics.Filter{
		SourceID: c.Query("source"),
		Metric:   c.Query("metric"),
		Window:   c.Query("range"),
	})
	if err != nil {
		return respondError(c, err, "Failed to load analytics")
	}
	return c.JSON(summary)
}

func (h *AnalyticsHandler) Seed(c *fiber.Ctx) error {
	n, err := h.service.SeedSampleData(c.Context(), currentUser(c))
	if err != nil {
		return respondError(c, err, "Failed to generate sample data")
	}
	return c.JSON(fiber.Map{
		"inserted": n,
	})
}
