package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pulseboard/backend/internal/ingestion"
)

// IngestHandler receives insight and metric batches from the external
// generation process.
type IngestHandler struct {
	processor *ingestion.Processor
}

func NewIngestHandler(processor *ingestion.Processor) *IngestHandler {
	return &IngestHandler{
		processor: processor,
	}
}

func (h *IngestHandler) Insights(c *fiber.Ctx) error {
	var req []ingestion.InsightInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	stored, err := h.processor.IngestInsights(c.Context(), currentUser(c), req)
	if err != nil {
		return respondError(c, err, "Failed to ingest insights")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"insights": stored,
	})
}

func (h *IngestHandler) Metrics(c *fiber.Ctx) error {
	var req []ingestion.MetricInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	n, err := h.processor.IngestMetrics(c.Context(), currentUser(c), req)
	if err != nil {
		return respondError(c, err, "Failed to ingest metrics")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"inserted": n,
	})
}
