package handlers

import (
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/hit-counter/internal/app"
	apperrors "github.com/spec-kit/hit-counter/pkg/util/errorutil"
)

// HitsHandler serves the visit counter endpoints.
type HitsHandler struct {
	state *app.State
}

// NewHitsHandler constructs handler.
func NewHitsHandler(state *app.State) *HitsHandler {
	return &HitsHandler{state: state}
}

// Root GET / and GET /hit.
func (h *HitsHandler) Root(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(h.state.Config.App.Greeting)
}

// Hit GET /hit/:target.
func (h *HitsHandler) Hit(c *fiber.Ctx) error {
	raw := utils.CopyString(c.Params("target"))
	target, err := url.PathUnescape(raw)
	if err != nil {
		return apperrors.NewValidationError("invalid target encoding", map[string]any{"target": raw})
	}

	count, err := h.state.HitService.Hit(c.UserContext(), target)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(strconv.FormatInt(count, 10))
}
