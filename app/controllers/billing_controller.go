package controllers

import (
	"strings"

	"github.com/clearaudio/gateway/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

func (a *API) HandleCheckout(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	url, err := a.Billing.StartCheckout(c.UserContext(), uc.UserID, uc.Email)
	if err != nil {
		return writeProblem(c, err, nil)
	}
	return c.JSON(fiber.Map{"url": url})
}

func (a *API) HandlePortal(c *fiber.Ctx) error {
	url, err := a.Billing.OpenPortal(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return writeProblem(c, err, nil)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleStripeWebhook feeds a Stripe delivery to the billing state machine.
// Any non-2xx reply makes Stripe redeliver.
func (a *API) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	res, err := a.Billing.HandleWebhook(c.UserContext(), payload, signature)
	if err != nil {
		return writeProblem(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"received":  true,
		"duplicate": res.Duplicate,
		"ignored":   res.Ignored,
	})
}
