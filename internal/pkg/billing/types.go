package billing

import (
	"errors"
	"time"
)

var (
	ErrSignatureInvalid   = errors.New("billing: webhook signature invalid")
	ErrUnsupportedEvent   = errors.New("billing: unsupported event type")
	ErrIncompleteEvent    = errors.New("billing: event is missing required references")
	ErrUnknownAccount     = errors.New("billing: no subscription for account")
	ErrAlreadySubscribed  = errors.New("billing: user already has an active pro subscription")
	ErrNoBillingAccount   = errors.New("billing: user has no billing account")
	ErrPriceNotConfigured = errors.New("billing: pro price is not configured")
)

// EventKind is a provider-neutral subscription lifecycle event.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout-completed"
	EventSubscriptionUpdated EventKind = "subscription-updated"
	EventSubscriptionDeleted EventKind = "subscription-deleted"
	EventPaymentFailed       EventKind = "payment-failed"
)

// LifecycleEvent is a verified, normalized provider event. UserID is only
// present on checkout-completed; the other kinds address the subscription by
// CustomerID.
type LifecycleEvent struct {
	ID             string
	Kind           EventKind
	ProviderType   string
	UserID         string
	CustomerID     string
	SubscriptionID string
	Status         string
	PeriodEnd      *time.Time
}

// WebhookResult tells the caller how a delivery was handled. Every result is
// acknowledged to the provider.
type WebhookResult struct {
	EventID   string
	Kind      EventKind
	Duplicate bool
	Ignored   bool
}
