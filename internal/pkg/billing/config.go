package billing

import (
	"strings"

	"github.com/clearaudio/gateway/internal/pkg/env"
)

// LoadConfig reads the Stripe settings. Redirect URLs are derived from
// PUBLIC_DOMAIN.
func LoadConfig() Config {
	origin := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000"), "/")
	return Config{
		WebhookSecret:   env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		ProPriceID:      env.GetEnv("STRIPE_PRO_PRICE_ID", ""),
		SuccessURL:      origin + "/account?success=true",
		CancelURL:       origin + "/pricing?canceled=true",
		PortalReturnURL: origin + "/account",
	}
}
