package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, Repository, *fakeProvider) {
	t.Helper()
	return newTestServiceWithPrice(t, "price_pro")
}

func newTestServiceWithPrice(t *testing.T, priceID string) (*Service, Repository, *fakeProvider) {
	t.Helper()
	repo := NewRepository(newTestDB(t))
	provider := &fakeProvider{periodEnd: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewService(repo, provider, entitlements.DefaultCatalog(priceID), Config{
		WebhookSecret:   testSecret,
		ProPriceID:      priceID,
		SuccessURL:      "https://app.example.com/account?success=true",
		CancelURL:       "https://app.example.com/pricing?canceled=true",
		PortalReturnURL: "https://app.example.com/account",
	})
	return svc, repo, provider
}

func deliver(t *testing.T, svc *Service, payload []byte) *WebhookResult {
	t.Helper()
	res, err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testSecret))
	require.NoError(t, err)
	return res
}

func TestHandleWebhookCheckoutUpgradesUser(t *testing.T) {
	svc, repo, provider := newTestService(t)
	ctx := context.Background()

	res := deliver(t, svc, checkoutPayload("evt_c", "user-1", "cus_1", "sub_1"))
	assert.Equal(t, EventCheckoutCompleted, res.Kind)
	assert.False(t, res.Duplicate)

	sub, err := repo.GetSubscriptionByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, sub.Plan)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "cus_1", sub.CustomerID())
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, provider.periodEnd.Equal(*sub.CurrentPeriodEnd))
}

func TestHandleWebhookReplayAfterDeleteDoesNotReupgrade(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	checkout := checkoutPayload("evt_c", "user-1", "cus_1", "sub_1")
	deleted := subscriptionPayload("evt_d", "customer.subscription.deleted", "cus_1", "canceled", 0)

	deliver(t, svc, checkout)
	assert.True(t, deliver(t, svc, checkout).Duplicate)
	deliver(t, svc, deleted)
	assert.True(t, deliver(t, svc, deleted).Duplicate)
	// a late replay of the original checkout must not resurrect the plan
	assert.True(t, deliver(t, svc, checkout).Duplicate)

	sub, err := repo.GetSubscriptionByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, sub.Plan)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.Nil(t, sub.ProviderSubscriptionID)
	assert.Nil(t, sub.CurrentPeriodEnd)
}

func TestHandleWebhookUpdateAndPaymentFailed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	deliver(t, svc, checkoutPayload("evt_c", "user-1", "cus_1", "sub_1"))

	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	deliver(t, svc, subscriptionPayload("evt_u", "customer.subscription.updated", "cus_1", "trialing", end.Unix()))
	sub, err := repo.GetSubscriptionByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	assert.True(t, end.Equal(*sub.CurrentPeriodEnd))

	deliver(t, svc, invoicePayload("evt_f", "cus_1"))
	sub, err = repo.GetSubscriptionByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, sub.Plan)
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)
}

func TestHandleWebhookUnknownAccountIsAcknowledged(t *testing.T) {
	svc, _, _ := newTestService(t)

	res := deliver(t, svc, invoicePayload("evt_f", "cus_missing"))
	assert.True(t, res.Ignored)

	// redelivery is now a settled duplicate
	assert.True(t, deliver(t, svc, invoicePayload("evt_f", "cus_missing")).Duplicate)
}

func TestHandleWebhookInvalidSignatureChangesNothing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	payload := checkoutPayload("evt_c", "user-1", "cus_1", "sub_1")

	_, err := svc.HandleWebhook(ctx, payload, signPayload(payload, "whsec_wrong"))
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	_, err = repo.GetSubscriptionByUserID(ctx, "user-1")
	assert.Error(t, err)

	// the genuine delivery is still processed afterwards
	res := deliver(t, svc, payload)
	assert.False(t, res.Duplicate)
	sub, err := repo.GetSubscriptionByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, sub.Plan)
}

func TestHandleWebhookFailedEventIsRetried(t *testing.T) {
	svc, repo, provider := newTestService(t)
	ctx := context.Background()
	payload := checkoutPayload("evt_c", "user-1", "cus_1", "sub_1")

	provider.fetchErr = errors.New("stripe unavailable")
	_, err := svc.HandleWebhook(ctx, payload, signPayload(payload, testSecret))
	assert.Error(t, err)

	provider.fetchErr = nil
	res := deliver(t, svc, payload)
	assert.False(t, res.Duplicate)
	sub, err := repo.GetSubscriptionByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, sub.Plan)
}

func TestHandleWebhookUnsupportedTypeIsIgnored(t *testing.T) {
	svc, _, _ := newTestService(t)
	payload := []byte(`{"id":"evt_x","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	res := deliver(t, svc, payload)
	assert.True(t, res.Ignored)
}

func TestStartCheckout(t *testing.T) {
	svc, repo, provider := newTestService(t)
	ctx := context.Background()

	url, err := svc.StartCheckout(ctx, "user-1", "u@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/user-1", url)
	assert.Equal(t, 1, provider.customers)
	require.Len(t, provider.checkouts, 1)
	assert.Equal(t, "cus_user-1", provider.checkouts[0].CustomerID)
	assert.Equal(t, "price_pro", provider.checkouts[0].PriceID)

	sub, err := repo.GetSubscriptionByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, sub.Plan)
	assert.Equal(t, "cus_user-1", sub.CustomerID())

	// the billing account is reused on the next attempt
	_, err = svc.StartCheckout(ctx, "user-1", "u@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.customers)
}

func TestStartCheckoutWithoutPrice(t *testing.T) {
	svc, _, provider := newTestServiceWithPrice(t, "")

	_, err := svc.StartCheckout(context.Background(), "user-1", "u@example.com")
	assert.ErrorIs(t, err, ErrPriceNotConfigured)
	assert.Zero(t, provider.customers)
	assert.Empty(t, provider.checkouts)
}

func TestStartCheckoutRejectsActivePro(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartCheckout(ctx, "user-1", "")
	require.NoError(t, err)
	deliver(t, svc, checkoutPayload("evt_c", "user-1", "cus_user-1", "sub_1"))

	_, err = svc.StartCheckout(ctx, "user-1", "")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestOpenPortal(t *testing.T) {
	svc, _, provider := newTestService(t)
	ctx := context.Background()

	_, err := svc.OpenPortal(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNoBillingAccount)

	_, err = svc.StartCheckout(ctx, "user-1", "")
	require.NoError(t, err)

	url, err := svc.OpenPortal(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com/cus_user-1", url)
	assert.Equal(t, "cus_user-1", provider.portalCustomer)
}
