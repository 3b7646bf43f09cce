package handlers

import (
	"errors"

	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

// respondError maps the domain error taxonomy onto HTTP statuses. Version
// conflicts surface as 409 like any other precondition failure: the
// caller's view was stale and they should re-read, not retry blindly.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, models.ErrValidation):
		status = fiber.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		status = fiber.StatusForbidden
		msg = err.Error()
	case errors.Is(err, models.ErrNotFound):
		status = fiber.StatusNotFound
		msg = "not found"
	case errors.Is(err, models.ErrPrecondition), errors.Is(err, models.ErrVersionConflict):
		status = fiber.StatusConflict
		msg = err.Error()
	case errors.Is(err, models.ErrProvider):
		status = fiber.StatusBadGateway
		msg = err.Error()
	}

	return c.Status(status).JSON(dto.ErrorResponse{Error: msg})
}
