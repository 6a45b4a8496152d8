package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/assistant"
	"github.com/pulseboard/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine *assistant.Engine
}

func NewWebSocketHandler(engine *assistant.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

// Upgrade lets only websocket handshakes through to the chat socket.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
			UserID  string `json:"userId"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" {
			continue
		}

		logger.Info("Processing WebSocket chat", zap.String("user_id", msg.UserID))

		err = h.streamResponse(c, msg.Content, msg.UserID)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, publicMessage(err, "Failed to process chat"))
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, message, userID string) error {
	ctx := context.Background()

	if err := h.send(c, fiber.Map{"type": "status", "content": "Analyzing your data..."}); err != nil {
		return err
	}

	resp, err := h.engine.Chat(ctx, assistant.ChatRequest{
		Message: message,
		UserID:  userID,
	})
	if err != nil {
		return err
	}

	words := splitIntoWords(resp.Message)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.send(c, fiber.Map{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	return h.send(c, fiber.Map{"type": "complete", "message": resp.Message})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg fiber.Map) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := fiber.Map{
		"type":    "error",
		"error":   errorMsg,
		"message": assistant.FallbackMessage,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoWords splits on spaces and keeps line breaks as their own tokens.
func splitIntoWords(text string) []string {
	words := []string{}
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, char := range text {
		switch char {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(char)
		}
	}
	flush()

	return words
}
