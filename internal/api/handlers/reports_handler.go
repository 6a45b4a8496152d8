package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pulseboard/backend/internal/reports"
)

type ReportsHandler struct {
	manager *reports.Manager
}

func NewReportsHandler(manager *reports.Manager) *ReportsHandler {
	return &ReportsHandler{
		manager: manager,
	}
}

func (h *ReportsHandler) Templates(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"templates": h.manager.Templates(),
	})
}

func (h *ReportsHandler) List(c *fiber.Ctx) error {
	list, err := h.manager.List(c.Context(), currentUser(c), reports.Filter{
		Search: c.Query("search"),
		Type:   c.Query("type"),
		Status: c.Query("status"),
	})
	if err != nil {
		return respondError(c, err, "Failed to list reports")
	}

	return c.JSON(fiber.Map{
		"reports": list,
	})
}

func (h *ReportsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.manager.Stats(c.Context(), currentUser(c))
	if err != nil {
		return respondError(c, err, "Failed to load report stats")
	}
	return c.JSON(stats)
}

func (h *ReportsHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Template string `json:"template"`
	}

	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	report, err := h.manager.CreateFromTemplate(c.Context(), currentUser(c), req.Template)
	if err != nil {
		return respondError(c, err, "Failed to create report")
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *ReportsHandler) Generate(c *fiber.Ctx) error {
	report, err := h.manager.Generate(c.Context(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to generate report")
	}
	return c.JSON(report)
}

func (h *ReportsHandler) Toggle(c *fiber.Ctx) error {
	report, err := h.manager.ToggleActive(c.Context(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to toggle report")
	}
	return c.JSON(report)
}

func (h *ReportsHandler) Delete(c *fiber.Ctx) error {
	if err := h.manager.Delete(c.Context(), currentUser(c), c.Params("id")); err != nil {
		return respondError(c, err, "Failed to delete report")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
