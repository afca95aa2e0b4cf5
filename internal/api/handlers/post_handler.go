package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(s service.PostService) *PostHandler {
	return &PostHandler{s: s}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Info(err.Error())
		return badRequest(c, "Unable to parse request body")
	}

	status, err := h.s.Create(c.Context(), GetUserID(c), &pc)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(status)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) Status(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	status, err := h.s.Status(c.Context(), GetUserID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

func (h *PostHandler) Cancel(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	if err := h.s.Cancel(c.Context(), GetUserID(c), id); err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post cancelled",
	})
}

func (h *PostHandler) UpdateContent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	var cu transfer.ContentUpdate
	if err := c.BodyParser(&cu); err != nil {
		slog.Info(err.Error())
		return badRequest(c, "Unable to parse request body")
	}
	if err := h.s.UpdateContent(c.Context(), GetUserID(c), id, &cu); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) Analytics(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	a, err := h.s.Analytics(c.Context(), GetUserID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	if a == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"available": false})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"available": true, "metrics": a})
}

func (h *PostHandler) RemoveFromPlatform(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	if err := h.s.RemoveFromPlatform(c.Context(), GetUserID(c), id); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
