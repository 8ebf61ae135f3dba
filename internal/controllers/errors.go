package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

// ErrorHandler maps domain errors returned by handlers onto HTTP responses
func ErrorHandler(c fiber.Ctx, err error) error {
	status, message := classifyError(err)

	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("method", c.Method()).Str("path", c.Path()).Int("status", status).Msg("Request rejected")
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func classifyError(err error) (int, string) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotConfigured):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrAuthentication):
		return fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrUpstream):
		return fiber.StatusBadGateway, err.Error()
	case errors.Is(err, domain.ErrPluginNotLoaded):
		return fiber.StatusBadRequest, err.Error()
	}

	return fiber.StatusInternalServerError, "unhandled error"
}
