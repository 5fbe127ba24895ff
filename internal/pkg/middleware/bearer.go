package middleware

import (
	"strings"

	"github.com/clearaudio/gateway/internal/pkg/auth"
	"github.com/clearaudio/gateway/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// TokenVerifier resolves a bearer token to a caller.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// BearerAuth attaches the caller to the request when a valid bearer token is
// present. Requests without one continue anonymously.
func BearerAuth(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return c.Next()
		}
		id, err := v.Verify(token)
		if err != nil {
			log.Debugf("[Auth] rejected bearer token: %v", err)
			return c.Next()
		}
		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     id.UserID,
			Email:      id.Email,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// RequireAPIAuth ensures an authenticated API caller; returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Authentication required",
		})
	}
	return c.Next()
}

func extractBearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
