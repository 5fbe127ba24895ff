package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Plan identifiers persisted on subscriptions. They must match the ids
// registered in the entitlements catalog.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Subscription is the per-user billing state. A user without a row is
// treated as free/active. Only the billing state machine mutates Plan,
// Status and the provider references.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_user" json:"user_id"`
	Plan                   string     `gorm:"type:varchar(50);not null;default:'free';index" json:"plan"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
	ProviderCustomerID     *string    `gorm:"type:varchar(191);uniqueIndex:ux_subscriptions_customer" json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID *string    `gorm:"type:varchar(191);index" json:"provider_subscription_id,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"default:null" json:"current_period_end,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultSubscription is the implicit state of a user that never checked out.
func DefaultSubscription(userID string) Subscription {
	return Subscription{
		UserID: userID,
		Plan:   PlanFree,
		Status: SubscriptionStatusActive,
	}
}

// CustomerID returns the provider customer reference or "".
func (s *Subscription) CustomerID() string {
	if s == nil || s.ProviderCustomerID == nil {
		return ""
	}
	return *s.ProviderCustomerID
}
