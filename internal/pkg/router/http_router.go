package router

import (
	"time"

	"github.com/clearaudio/gateway/internal/pkg/metrics"
	"github.com/clearaudio/gateway/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Use(metrics.Middleware())
	app.Use(middleware.BearerAuth(h.deps.Verifier))

	app.Get("/health", h.deps.API.HandleHealth)
	app.Get("/metrics", metrics.Handler())

	// signed by Stripe, no bearer auth and no rate limit
	app.Post("/webhooks/stripe", h.deps.API.HandleStripeWebhook)

	if h.deps.BlobDir != "" {
		app.Static("/blobs", h.deps.BlobDir, fiber.Static{
			CacheDuration: 10 * time.Second,
			MaxAge:        604800,
		})
	}
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}
