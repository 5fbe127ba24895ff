package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clearaudio/gateway/internal/pkg/database"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "whsec_test_secret"

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutPayload(eventID, userID, customerID, subscriptionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "checkout.session.completed",
		"api_version": "2024-06-20",
		"data": {"object": {
			"id": "cs_test",
			"object": "checkout.session",
			"customer": %q,
			"subscription": %q,
			"metadata": {"userId": %q}
		}}
	}`, eventID, customerID, subscriptionID, userID))
}

func subscriptionPayload(eventID, eventType, customerID, status string, periodEnd int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": "sub_1",
			"object": "subscription",
			"customer": %q,
			"status": %q,
			"current_period_end": %d
		}}
	}`, eventID, eventType, customerID, status, periodEnd))
}

func invoicePayload(eventID, customerID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_1", "object": "invoice", "customer": %q}}
	}`, eventID, customerID))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMigratedSQLite(":memory:")
	require.NoError(t, err)
	return db
}

type fakeProvider struct {
	mu             sync.Mutex
	periodEnd      time.Time
	customers      int
	checkouts      []CheckoutRequest
	portalCustomer string
	fetchErr       error
}

func (p *fakeProvider) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers++
	return "cus_" + userID, nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkouts = append(p.checkouts, req)
	return "https://checkout.example.com/" + req.UserID, nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.portalCustomer = customerID
	return "https://portal.example.com/" + customerID, nil
}

func (p *fakeProvider) FetchSubscription(_ context.Context, id string) (*ProviderSubscription, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	end := p.periodEnd
	return &ProviderSubscription{ID: id, Status: "active", CurrentPeriodEnd: &end}, nil
}
