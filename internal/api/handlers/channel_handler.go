package handlers

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/service"
)

type ChannelHandler struct {
	s   service.ChannelService
	cfg config.Config
}

func NewChannelHandler(s service.ChannelService, cfg config.Config) *ChannelHandler {
	return &ChannelHandler{s: s, cfg: cfg}
}

// Connect sends the user to the provider's consent screen.
func (h *ChannelHandler) Connect(c *fiber.Ctx) error {
	authURL, err := h.s.AuthorizationURL(c.Context(), GetUserID(c), int64(c.QueryInt("brand_id", 0)), c.Params("provider"))
	if err != nil {
		return sendError(c, err)
	}
	if c.Query("redirect") == "false" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": authURL})
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

func (h *ChannelHandler) Callback(c *fiber.Ctx) error {
	if e := c.Query("error"); e != "" {
		return badRequest(c, "authorization denied: "+e)
	}
	code := c.Query("code")
	if code == "" {
		return badRequest(c, "missing authorization code")
	}

	ch, err := h.s.HandleCallback(c.Context(), c.Params("provider"), code, c.Query("state"))
	if err != nil {
		return sendError(c, err)
	}

	redirectURL := fmt.Sprintf("%s/dashboard/channels?connected=%s&channel_id=%d", h.cfg.FrontendURL, url.QueryEscape(ch.Provider), ch.ID)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *ChannelHandler) List(c *fiber.Ctx) error {
	channels, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(channels)
}

func (h *ChannelHandler) Test(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	res, err := h.s.TestConnection(c.Context(), GetUserID(c), id)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *ChannelHandler) Disconnect(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return sendError(c, err)
	}
	if err := h.s.Disconnect(c.Context(), GetUserID(c), id); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChannelHandler) Providers(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.s.Providers())
}
