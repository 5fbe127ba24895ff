package ratelimit

import (
	"time"

	"github.com/clearaudio/gateway/internal/pkg/cache"
	"github.com/clearaudio/gateway/internal/pkg/env"
	"github.com/clearaudio/gateway/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

// Config bounds requests per caller within a sliding window.
type Config struct {
	Max        int
	Expiration time.Duration
}

// LoadConfig reads RATE_LIMIT_MAX and RATE_LIMIT_WINDOW.
func LoadConfig() Config {
	return Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", 60),
		Expiration: env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

// NewRedisStorage shares limiter counters between gateway instances. It
// uses database 1 so counters never mix with cached records in database 0.
func NewRedisStorage(cfg cache.Config) fiber.Storage {
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		Database: 1,
		Reset:    false,
	})
}

// New limits each caller, keyed by user id when authenticated and by IP
// otherwise. A nil storage keeps counters in memory.
func New(cfg Config, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               cfg.Max,
		Expiration:        cfg.Expiration,
		Storage:           storage,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetUserID(c); id != "" {
				return "user:" + id
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "RATE_LIMITED",
				"message": "Too many requests",
			})
		},
	})
}
