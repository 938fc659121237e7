package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

// classify maps an error to an HTTP status and a client-safe detail.
func classify(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}

	switch {
	case errors.Is(err, apperrors.ErrInputValidation),
		errors.Is(err, apperrors.ErrInvalidAttachment),
		errors.Is(err, apperrors.ErrExtraction):
		return fiber.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, apperrors.ErrModelUnavailable):
		return fiber.StatusServiceUnavailable, "Trade extraction service is unavailable."
	case errors.Is(err, apperrors.ErrNotConnected):
		return fiber.StatusUnauthorized, "Google account not connected."
	case errors.Is(err, apperrors.ErrJobNotFound):
		return fiber.StatusNotFound, "Job not found."
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return fiber.StatusNotFound, "Capture session not found."
	case errors.Is(err, apperrors.ErrStateExpired):
		return fiber.StatusBadRequest, "OAuth state token has expired."
	case errors.Is(err, apperrors.ErrStateInvalid):
		return fiber.StatusBadRequest, "Invalid OAuth state token."
	case errors.Is(err, apperrors.ErrOAuthExchange):
		return fiber.StatusBadRequest, "Failed to exchange authorization code."
	case errors.Is(err, apperrors.ErrForbidden):
		return fiber.StatusForbidden, "Forbidden."
	case errors.Is(err, apperrors.ErrCommitFailed):
		return fiber.StatusInternalServerError, "Failed to record trade in the journal."
	}
	return fiber.StatusInternalServerError, "Internal server error."
}

// errorHandler renders every handler error as {"detail": ...}.
func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, detail := classify(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Int("status", status).
				Msg("Request failed")
		}
		return c.Status(status).JSON(fiber.Map{"detail": detail})
	}
}
