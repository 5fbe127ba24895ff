package controllers

import (
	"context"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/billing"
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/clearaudio/gateway/internal/pkg/gateway"
	"github.com/clearaudio/gateway/internal/pkg/usage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type Separator interface {
	Separate(ctx context.Context, userID string, req gateway.Request) (*gateway.Result, error)
}

type UsageReporter interface {
	Stats(ctx context.Context, userID string) (*usage.Stats, error)
	Check(ctx context.Context, userID string, p usage.Profile) (*usage.Admission, error)
}

type PlanLister interface {
	Plans() []entitlements.Plan
}

type BillingService interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*billing.WebhookResult, error)
	StartCheckout(ctx context.Context, userID, email string) (string, error)
	OpenPortal(ctx context.Context, userID string) (string, error)
}

type ShareReader interface {
	Get(ctx context.Context, shareID string) (*models.ShareRecord, error)
}

type ViewCounter interface {
	AddShareView(ctx context.Context, recordID string) error
}

// API holds the services behind the HTTP handlers. Views and Ping are optional.
type API struct {
	Pipeline Separator
	Usage    UsageReporter
	Billing  BillingService
	Shares   ShareReader
	Plans    PlanLister
	Views    ViewCounter
	Ping     func(ctx context.Context) error
}

// writeProblem renders err as the JSON error envelope.
func writeProblem(c *fiber.Ctx, err error, extra fiber.Map) error {
	p := gateway.Classify(err)
	if p.Status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	body := fiber.Map{"error": p.Code, "message": p.Message}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(p.Status).JSON(body)
}

func usageSummary(adm *usage.Admission) fiber.Map {
	return fiber.Map{
		"plan":      adm.Plan,
		"used":      adm.Used,
		"limit":     adm.Limit,
		"remaining": adm.Remaining,
	}
}
