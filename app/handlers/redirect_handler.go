package handlers

import (
	"github.com/amirphl/orochi-attribution/app/middleware"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// RedirectHandlerInterface defines the contract for the public tracked link endpoint
type RedirectHandlerInterface interface {
	Visit(c fiber.Ctx) error
}

type RedirectHandler struct {
	baseHandler
	flow        businessflow.ClickRecordFlow
	fallbackURL string
}

func NewRedirectHandler(flow businessflow.ClickRecordFlow, fallbackURL string, log *logrus.Entry) *RedirectHandler {
	return &RedirectHandler{baseHandler: newBaseHandler(log), flow: flow, fallbackURL: fallbackURL}
}

// Visit records the first click and redirects to the product page
// @Summary Visit tracked link
// @Description Unknown links redirect to the generic landing page instead of failing
// @Tags Redirect
// @Param uid path string true "Tracked link UID"
// @Success 302 {string} string "Redirect"
// @Router /r/{uid} [get]
func (h *RedirectHandler) Visit(c fiber.Ctx) error {
	uid := c.Params("uid")
	ctx, cancel := h.createRequestContext(c, "/r/"+uid)
	defer cancel()

	target, err := h.flow.RecordClick(ctx, uid)
	if err != nil {
		if !businessflow.IsClickLogNotFound(err) {
			h.log.WithError(err).WithField("uid", uid).Error("record click failed")
		}
		target = h.fallbackURL
		c.Locals(middleware.TrackedRedirectFallbackKey, true)
	}
	return c.Redirect().Status(fiber.StatusFound).To(target)
}
