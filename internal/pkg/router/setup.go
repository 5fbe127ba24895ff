package router

import (
	"github.com/clearaudio/gateway/app/controllers"
	"github.com/clearaudio/gateway/internal/pkg/middleware"
	"github.com/clearaudio/gateway/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps is everything the routes need. LimiterStorage may be nil and
// BlobDir empty when outputs are not served locally.
type Deps struct {
	API            *controllers.API
	Verifier       middleware.TokenVerifier
	RateLimit      ratelimit.Config
	LimiterStorage fiber.Storage
	BlobDir        string
}

func InstallRouter(app *fiber.App, deps Deps) {
	// HttpRouter registers the global middleware the API routes rely on.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
