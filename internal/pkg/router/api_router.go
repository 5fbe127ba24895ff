package router

import (
	"github.com/clearaudio/gateway/app/controllers"
	"github.com/clearaudio/gateway/internal/pkg/middleware"
	"github.com/clearaudio/gateway/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", ratelimit.New(h.deps.RateLimit, h.deps.LimiterStorage))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	a := h.deps.API
	v1 := api.Group("/v1")
	v1.Get("/models", controllers.HandleListModels)
	v1.Get("/plans", a.HandleListPlans)
	v1.Get("/shares/:shareId", a.HandleGetShare)

	requireAuth := middleware.RequireAPIAuth
	v1.Post("/separations", requireAuth, a.HandleCreateSeparation)
	v1.Post("/separations/authorize", requireAuth, a.HandleAuthorizeSeparation)
	v1.Get("/usage", requireAuth, a.HandleGetUsage)
	v1.Post("/billing/checkout", requireAuth, a.HandleCheckout)
	v1.Post("/billing/portal", requireAuth, a.HandlePortal)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
