package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/assistant"
	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/pkg/logger"
)

type ChatHandler struct {
	engine *assistant.Engine
	local  *assistant.LocalResponder
	now    func() time.Time
}

func NewChatHandler(engine *assistant.Engine, local *assistant.LocalResponder) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		local:  local,
		now:    time.Now,
	}
}

// HandleChat answers {message, userId} with {message}. Failures always carry
// the fallback text so the dashboard has something to show.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req assistant.ChatRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"message": assistant.FallbackMessage,
		})
	}

	resp, err := h.engine.Chat(c.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("Failed to process chat", zap.String("user_id", req.UserID), zap.Error(err))
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   publicMessage(err, "Failed to process chat"),
			"message": assistant.FallbackMessage,
		})
	}

	return c.JSON(fiber.Map{
		"message": resp.Message,
	})
}

// HandleLocalChat answers from the canned responder without calling a provider.
func (h *ChatHandler) HandleLocalChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var req struct {
		Query string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}

	message := h.local.Respond(req.Query)

	metrics.ChatTotal.WithLabelValues("local", "success").Inc()
	metrics.ChatDuration.WithLabelValues("local").Observe(time.Since(startTime).Seconds())

	return c.JSON(fiber.Map{
		"message": message,
	})
}

func (h *ChatHandler) History(c *fiber.Ctx) error {
	turns, err := h.engine.History(c.Context(), currentUser(c))
	if err != nil {
		return respondError(c, err, "Failed to load chat history")
	}

	return c.JSON(fiber.Map{
		"messages": turns,
	})
}

// Export downloads the stored conversation as a plain-text transcript.
func (h *ChatHandler) Export(c *fiber.Ctx) error {
	turns, err := h.engine.History(c.Context(), currentUser(c))
	if err != nil {
		return respondError(c, err, "Failed to export chat")
	}

	filename := fmt.Sprintf("ai-chat-%s.txt", h.now().UTC().Format("2006-01-02"))
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.SendString(assistant.ExportTranscript(turns))
}
