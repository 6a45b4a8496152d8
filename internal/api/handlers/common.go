package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/datasource"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

const userIDKey = "user_id"

// RequireUser rejects requests without an X-User-ID header and stores the id
// for the handlers behind it.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "X-User-ID header is required",
			})
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	userID, _ := c.Locals(userIDKey).(string)
	return userID
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperrors.ErrExternalService):
		return fiber.StatusBadGateway
	case errors.Is(err, datasource.ErrClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// publicMessage is the user-safe text for err. Validation messages are ours
// and are returned as is; anything else hides the cause.
func publicMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		return "Resource already exists"
	case errors.Is(err, apperrors.ErrExternalService):
		return "AI provider is unavailable"
	case errors.Is(err, datasource.ErrClosed):
		return "Service is shutting down"
	default:
		return fallback
	}
}

func respondError(c *fiber.Ctx, err error, fallback string) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(fallback,
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": publicMessage(err, fallback),
	})
}

func invalidBody(c *fiber.Ctx, err error) error {
	logger.Debug("Failed to parse request body", zap.Error(err))
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
	})
}
