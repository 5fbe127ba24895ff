package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/clearaudio/gateway/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Config carries the billing settings loaded at startup. ProPriceID seeds
// the pro plan of the catalog; checkout reads the price from the catalog.
type Config struct {
	WebhookSecret   string
	ProPriceID      string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// Service drives the subscription lifecycle from verified provider events
// and runs the outbound checkout and portal flows.
type Service struct {
	repo     Repository
	provider Provider
	plans    PlanResolver
	cfg      Config
}

// PlanResolver looks up a plan by id. *entitlements.Catalog satisfies it.
type PlanResolver interface {
	Resolve(id string) (entitlements.Plan, error)
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, provider Provider, plans PlanResolver, cfg Config) *Service {
	return &Service{repo: repo, provider: provider, plans: plans, cfg: cfg}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider Provider, plans PlanResolver, cfg Config) *Service {
	return NewService(NewRepository(db), provider, plans, cfg)
}

// HandleWebhook verifies and applies one provider delivery. Only
// ErrSignatureInvalid, ErrIncompleteEvent and infrastructure errors are
// returned; unknown accounts, unsupported types and replays are acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*WebhookResult, error) {
	ev, err := ParseStripeEvent(payload, sigHeader, s.cfg.WebhookSecret)
	switch {
	case errors.Is(err, ErrSignatureInvalid):
		log.Warnf("[Billing] rejected webhook: %v", err)
		metrics.RecordWebhook("", "signature_invalid")
		return nil, err
	case errors.Is(err, ErrUnsupportedEvent):
		log.Infof("[Billing] ignoring unhandled event type %s (%s)", ev.ProviderType, ev.ID)
		metrics.RecordWebhook("", "unsupported")
		return &WebhookResult{EventID: ev.ID, Ignored: true}, nil
	case err != nil:
		log.Warnf("[Billing] malformed %s event %s: %v", ev.ProviderType, ev.ID, err)
		metrics.RecordWebhook(string(ev.Kind), "incomplete")
		return nil, err
	}

	result := &WebhookResult{EventID: ev.ID, Kind: ev.Kind}

	created, stored, err := s.recordEvent(ctx, ev, payload)
	if err != nil {
		return nil, fmt.Errorf("billing: record webhook event: %w", err)
	}
	if !created && stored.Settled() {
		log.Infof("[Billing] duplicate event %s (%s) skipped", ev.ID, ev.Kind)
		metrics.RecordWebhook(string(ev.Kind), "duplicate")
		result.Duplicate = true
		return result, nil
	}

	applyErr := s.applyEvent(ctx, ev)
	if errors.Is(applyErr, ErrUnknownAccount) {
		log.Warnf("[Billing] %s event %s for unknown customer %s dropped", ev.Kind, ev.ID, ev.CustomerID)
		metrics.RecordWebhook(string(ev.Kind), "unknown_account")
		result.Ignored = true
		if err := s.repo.MarkWebhookProcessed(ctx, stored.ID, ""); err != nil {
			return nil, err
		}
		return result, nil
	}

	errMsg := ""
	if applyErr != nil {
		errMsg = applyErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(ctx, stored.ID, errMsg); err != nil {
		log.Errorf("[Billing] failed to mark event %s processed: %v", ev.ID, err)
		if applyErr == nil {
			applyErr = err
		}
	}
	if applyErr != nil {
		metrics.RecordWebhook(string(ev.Kind), "failed")
		return nil, applyErr
	}
	metrics.RecordWebhook(string(ev.Kind), "applied")
	return result, nil
}

func (s *Service) recordEvent(ctx context.Context, ev LifecycleEvent, payload []byte) (bool, *models.BillingWebhookEvent, error) {
	eventID := strings.TrimSpace(ev.ID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       ev.ProviderType,
		PayloadJSON:     string(payload),
	})
}

func (s *Service) applyEvent(ctx context.Context, ev LifecycleEvent) error {
	var current *models.Subscription
	var err error

	if ev.Kind == EventCheckoutCompleted {
		if ev.PeriodEnd == nil && s.provider != nil {
			ps, ferr := s.provider.FetchSubscription(ctx, ev.SubscriptionID)
			if ferr != nil {
				return fmt.Errorf("billing: fetch subscription %s: %w", ev.SubscriptionID, ferr)
			}
			ev.PeriodEnd = ps.CurrentPeriodEnd
		}
		current, err = s.repo.GetSubscriptionByUserID(ctx, ev.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d := models.DefaultSubscription(ev.UserID)
			current, err = &d, nil
		}
	} else {
		current, err = s.repo.GetSubscriptionByCustomerID(ctx, ev.CustomerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownAccount
		}
	}
	if err != nil {
		return err
	}

	next := Apply(*current, ev)
	if err := s.repo.SaveSubscription(ctx, &next); err != nil {
		return err
	}
	log.Infof("[Billing] %s applied for user %s: plan=%s status=%s", ev.Kind, next.UserID, next.Plan, next.Status)
	return nil
}

// StartCheckout creates a subscription checkout session for the pro plan
// and returns its URL. The billing account is created on first use.
func (s *Service) StartCheckout(ctx context.Context, userID, email string) (string, error) {
	pro, err := s.plans.Resolve(models.PlanPro)
	if err != nil || pro.ProviderPriceID == "" {
		return "", ErrPriceNotConfigured
	}
	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d := models.DefaultSubscription(userID)
		sub, err = &d, nil
	}
	if err != nil {
		return "", err
	}
	if sub.Plan == models.PlanPro && isEntitlingStatus(sub.Status) {
		return "", ErrAlreadySubscribed
	}

	customerID := sub.CustomerID()
	if customerID == "" {
		customerID, err = s.provider.CreateCustomer(ctx, userID, email)
		if err != nil {
			return "", fmt.Errorf("billing: create customer: %w", err)
		}
		sub.ProviderCustomerID = &customerID
		if err := s.repo.SaveSubscription(ctx, sub); err != nil {
			return "", err
		}
		log.Infof("[Billing] created billing account %s for user %s", customerID, userID)
	}

	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     userID,
		CustomerID: customerID,
		PriceID:    pro.ProviderPriceID,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	return url, nil
}

// OpenPortal returns a customer portal URL for a user with a billing account.
func (s *Service) OpenPortal(ctx context.Context, userID string) (string, error) {
	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoBillingAccount
	}
	if err != nil {
		return "", err
	}
	if sub.CustomerID() == "" {
		return "", ErrNoBillingAccount
	}
	url, err := s.provider.CreatePortalSession(ctx, sub.CustomerID(), s.cfg.PortalReturnURL)
	if err != nil {
		return "", fmt.Errorf("billing: create portal session: %w", err)
	}
	return url, nil
}

func isEntitlingStatus(status string) bool {
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}
