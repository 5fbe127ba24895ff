package billing

import (
	"time"

	"github.com/clearaudio/gateway/app/models"
)

// Apply returns the subscription state after ev. Every transition sets
// fields to absolute values, so applying the same event twice yields the
// same state as applying it once.
func Apply(current models.Subscription, ev LifecycleEvent) models.Subscription {
	next := current
	next.ProviderCustomerID = cloneString(current.ProviderCustomerID)
	next.ProviderSubscriptionID = cloneString(current.ProviderSubscriptionID)
	next.CurrentPeriodEnd = cloneTime(current.CurrentPeriodEnd)

	switch ev.Kind {
	case EventCheckoutCompleted:
		next.Plan = models.PlanPro
		next.Status = models.SubscriptionStatusActive
		next.ProviderCustomerID = stringPtr(ev.CustomerID)
		next.ProviderSubscriptionID = stringPtr(ev.SubscriptionID)
		next.CurrentPeriodEnd = cloneTime(ev.PeriodEnd)
	case EventSubscriptionUpdated:
		next.Status = MapProviderStatus(ev.Status)
		if ev.PeriodEnd != nil {
			next.CurrentPeriodEnd = cloneTime(ev.PeriodEnd)
		}
	case EventSubscriptionDeleted:
		next.Plan = models.PlanFree
		next.Status = models.SubscriptionStatusCanceled
		next.ProviderSubscriptionID = nil
		next.CurrentPeriodEnd = nil
	case EventPaymentFailed:
		next.Status = models.SubscriptionStatusPastDue
	}

	// free subscriptions never carry a provider period
	if next.Plan == models.PlanFree {
		next.CurrentPeriodEnd = nil
	}
	return next
}

// MapProviderStatus maps the provider's subscription status onto ours.
// Values outside the known set pass through unchanged.
func MapProviderStatus(status string) string {
	switch status {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "canceled":
		return models.SubscriptionStatusCanceled
	default:
		return status
	}
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
