package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ParseStripeEvent verifies the Stripe-Signature header over the raw payload
// and normalizes the event. A bad or missing signature returns
// ErrSignatureInvalid. Event types outside the lifecycle set return the
// event id with ErrUnsupportedEvent.
func ParseStripeEvent(payload []byte, sigHeader, secret string) (LifecycleEvent, error) {
	if strings.TrimSpace(sigHeader) == "" || strings.TrimSpace(secret) == "" {
		return LifecycleEvent{}, ErrSignatureInvalid
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return LifecycleEvent{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return normalizeStripeEvent(event)
}

func normalizeStripeEvent(event stripe.Event) (LifecycleEvent, error) {
	ev := LifecycleEvent{ID: event.ID, ProviderType: string(event.Type)}
	if event.Data == nil {
		return ev, ErrIncompleteEvent
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return ev, fmt.Errorf("%w: checkout session: %v", ErrIncompleteEvent, err)
		}
		ev.Kind = EventCheckoutCompleted
		ev.UserID = sess.Metadata["userId"]
		if ev.UserID == "" {
			ev.UserID = sess.ClientReferenceID
		}
		if sess.Customer != nil {
			ev.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ev.SubscriptionID = sess.Subscription.ID
		}
		if ev.UserID == "" || ev.CustomerID == "" || ev.SubscriptionID == "" {
			return ev, fmt.Errorf("%w: checkout session %s", ErrIncompleteEvent, sess.ID)
		}

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ev, fmt.Errorf("%w: subscription: %v", ErrIncompleteEvent, err)
		}
		ev.Kind = EventSubscriptionUpdated
		if event.Type == "customer.subscription.deleted" {
			ev.Kind = EventSubscriptionDeleted
		}
		ev.SubscriptionID = sub.ID
		ev.Status = string(sub.Status)
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		ev.PeriodEnd = unixTime(sub.CurrentPeriodEnd)
		if ev.CustomerID == "" {
			return ev, fmt.Errorf("%w: subscription %s has no customer", ErrIncompleteEvent, sub.ID)
		}

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return ev, fmt.Errorf("%w: invoice: %v", ErrIncompleteEvent, err)
		}
		ev.Kind = EventPaymentFailed
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
		if ev.CustomerID == "" {
			return ev, fmt.Errorf("%w: invoice %s has no customer", ErrIncompleteEvent, inv.ID)
		}

	default:
		return ev, ErrUnsupportedEvent
	}
	return ev, nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
