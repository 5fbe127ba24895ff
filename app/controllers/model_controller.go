package controllers

import (
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2"
)

func HandleListModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"models":  entitlements.Tiers(),
		"default": entitlements.DefaultTier,
	})
}

// HandleListPlans lists the subscription plans and their limits.
func (a *API) HandleListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": a.Plans.Plans()})
}
