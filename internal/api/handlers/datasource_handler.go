package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pulseboard/backend/internal/datasource"
)

type DataSourceHandler struct {
	registry *datasource.Registry
}

func NewDataSourceHandler(registry *datasource.Registry) *DataSourceHandler {
	return &DataSourceHandler{
		registry: registry,
	}
}

func (h *DataSourceHandler) ListAvailable(c *fiber.Ctx) error {
	integrations := h.registry.ListAvailable(datasource.Filter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
	})

	return c.JSON(fiber.Map{
		"integrations": integrations,
	})
}

func (h *DataSourceHandler) ListConnected(c *fiber.Ctx) error {
	sources, err := h.registry.ListConnected(c.Context(), currentUser(c), datasource.Filter{
		Search: c.Query("search"),
		Status: c.Query("status"),
	})
	if err != nil {
		return respondError(c, err, "Failed to list data sources")
	}

	return c.JSON(fiber.Map{
		"data_sources": sources,
	})
}

func (h *DataSourceHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.registry.Stats(c.Context(), currentUser(c))
	if err != nil {
		return respondError(c, err, "Failed to load data source stats")
	}
	return c.JSON(stats)
}

func (h *DataSourceHandler) Toggle(c *fiber.Ctx) error {
	ds, err := h.registry.ToggleConnection(c.Context(), currentUser(c), c.Params("type"))
	if err != nil {
		return respondError(c, err, "Failed to toggle data source")
	}
	return c.JSON(ds)
}

// Refresh answers 202 with the syncing row; the sync finishes in the background.
func (h *DataSourceHandler) Refresh(c *fiber.Ctx) error {
	ds, err := h.registry.Refresh(c.Context(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to refresh data source")
	}
	return c.Status(fiber.StatusAccepted).JSON(ds)
}
