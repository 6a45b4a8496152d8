package validation

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/pkg/logger"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxMessageLength    int
	AllowedContentTypes []string
	// Fallback is sent as "message" on rejected chat bodies.
	Fallback string
	Logger   *zap.Logger
}

// chatFields maps chat routes to the body field holding the user's text.
var chatFields = map[string]string{
	"/chat":       "message",
	"/chat/local": "query",
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 4000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		field, ok := chatField(c.Path())
		if !ok {
			return c.Next()
		}

		var req map[string]any
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return reject(c, cfg, "Invalid JSON format")
		}

		text, ok := req[field].(string)
		text = sanitizeString(text)
		if !ok || text == "" {
			return reject(c, cfg, field+" is required and must be a string")
		}

		if utf8.RuneCountInString(text) > cfg.MaxMessageLength {
			return reject(c, cfg, field+" exceeds maximum length")
		}

		if xssPattern.MatchString(text) {
			cfg.Logger.Warn("Potential XSS attempt",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return reject(c, cfg, "Invalid message content")
		}

		return c.Next()
	}
}

func chatField(path string) (string, bool) {
	path = strings.TrimRight(path, "/")
	for suffix, field := range chatFields {
		if strings.HasSuffix(path, suffix) {
			return field, true
		}
	}
	return "", false
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func reject(c *fiber.Ctx, cfg Config, msg string) error {
	body := fiber.Map{"error": msg}
	if cfg.Fallback != "" {
		body["message"] = cfg.Fallback
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
