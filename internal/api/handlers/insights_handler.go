package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pulseboard/backend/internal/insights"
)

type InsightsHandler struct {
	service *insights.Service
}

func NewInsightsHandler(service *insights.Service) *InsightsHandler {
	return &InsightsHandler{
		service: service,
	}
}

func (h *InsightsHandler) List(c *fiber.Ctx) error {
	feed, err := h.service.List(c.Context(), currentUser(c), insights.Filter{
		Search:   c.Query("search"),
		Severity: c.Query("severity"),
		Kind:     c.Query("type"),
		Category: c.Query("category"),
	})
	if err != nil {
		return respondError(c, err, "Failed to list insights")
	}

	return c.JSON(fiber.Map{
		"insights": feed,
	})
}

func (h *InsightsHandler) Dismiss(c *fiber.Ctx) error {
	if err := h.service.Dismiss(c.Context(), currentUser(c), c.Params("id")); err != nil {
		return respondError(c, err, "Failed to dismiss insight")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
