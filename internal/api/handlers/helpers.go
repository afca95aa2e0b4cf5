package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/provider"
	"github.com/maheshrc27/crosspost/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	s, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(s, 10, 64)
	return userID
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// sendError writes err as a JSON body with the status that matches its
// service or provider error kind.
func sendError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	status, body := errorResponse(err)
	if status == fiber.StatusInternalServerError {
		slog.Error(err.Error(), "path", c.Path())
	}
	return c.Status(status).JSON(body)
}

func errorResponse(err error) (int, fiber.Map) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, fiber.Map{"error": err.Error()}
	case errors.Is(err, service.ErrInvalidInput):
		return fiber.StatusUnprocessableEntity, fiber.Map{"error": err.Error()}
	case errors.Is(err, service.ErrInvalidState):
		return fiber.StatusBadRequest, fiber.Map{"error": err.Error()}
	case errors.Is(err, service.ErrPostImmutable),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrChannelBlocked),
		errors.Is(err, service.ErrNotPublished):
		return fiber.StatusConflict, fiber.Map{"error": err.Error()}
	}

	pe, ok := provider.AsError(err)
	if !ok {
		return fiber.StatusInternalServerError, fiber.Map{"error": "internal server error"}
	}
	body := fiber.Map{"error": pe.Error(), "kind": pe.Kind}
	if pe.Code != "" {
		body["code"] = pe.Code
	}
	if pe.Remediation != "" {
		body["remediation"] = pe.Remediation
	}

	switch pe.Kind {
	case provider.KindConfiguration, provider.KindOAuth:
		return fiber.StatusBadRequest, body
	case provider.KindValidation:
		return fiber.StatusUnprocessableEntity, body
	case provider.KindUnsupported:
		return fiber.StatusConflict, body
	case provider.KindTransient, provider.KindMediaTimeout:
		return fiber.StatusServiceUnavailable, body
	default:
		return fiber.StatusBadGateway, body
	}
}
