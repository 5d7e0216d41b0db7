package controllers

import (
	"errors"
	"strconv"

	"academy_backoffice/services"

	"github.com/gofiber/fiber/v2"
)

// serviceError turns a service error into a *fiber.Error for customErrorHandler.
// Errors without a kind stay 500 and keep their text out of the response.
func serviceError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, services.PublicMessage(err))
	case errors.Is(err, services.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, services.PublicMessage(err))
	case errors.Is(err, services.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, services.PublicMessage(err))
	}
	return err
}

// currentUserID reads the operator id forwarded by the admin frontend, if any.
func currentUserID(c *fiber.Ctx) *uint {
	v := c.Get("X-User-ID")
	if v == "" {
		return nil
	}
	id64, err := strconv.ParseUint(v, 10, 32)
	if err != nil || id64 == 0 {
		return nil
	}
	id := uint(id64)
	return &id
}
