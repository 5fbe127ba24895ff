package controllers

import (
	"github.com/clearaudio/gateway/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// HandleGetUsage reports consumption in the caller's current period.
func (a *API) HandleGetUsage(c *fiber.Ctx) error {
	stats, err := a.Usage.Stats(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return writeProblem(c, err, nil)
	}
	return c.JSON(stats)
}
