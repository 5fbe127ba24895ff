package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

func (a *API) HandleHealth(c *fiber.Ctx) error {
	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
