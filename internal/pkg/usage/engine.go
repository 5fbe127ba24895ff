package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var ErrStoreUnavailable = errors.New("usage: store unavailable")

type DenialCode string

const (
	DenialUnauthenticated DenialCode = "unauthenticated"
	DenialFeature         DenialCode = "feature-denied"
	DenialQuota           DenialCode = "quota-exceeded"
)

// Feature names the limit a feature denial refers to.
const (
	FeatureTier         = "tier"
	FeatureInputSize    = "input_size"
	FeatureHighFidelity = "high_fidelity"
)

// Profile is what a request asks for. Label is carried onto the entry.
type Profile struct {
	Tier         entitlements.Tier
	SizeBytes    int64
	HighFidelity bool
	Label        string
}

// Admission is the outcome of AdmitAndRecord. Entry is set only when a unit
// was consumed.
type Admission struct {
	Admitted  bool               `json:"admitted"`
	Used      int                `json:"used"`
	Limit     int                `json:"limit"`
	Remaining int                `json:"remaining"`
	Plan      string             `json:"plan"`
	Reason    string             `json:"reason,omitempty"`
	Code      DenialCode         `json:"code,omitempty"`
	Feature   string             `json:"feature,omitempty"`
	Entry     *models.UsageEntry `json:"-"`
}

// Stats is the read-only usage view for a user.
type Stats struct {
	Plan        string              `json:"plan"`
	Status      string              `json:"status"`
	Used        int                 `json:"used"`
	Limit       int                 `json:"limit"`
	Remaining   int                 `json:"remaining"`
	PeriodStart time.Time           `json:"period_start"`
	PeriodEnd   time.Time           `json:"period_end"`
	Recent      []models.UsageEntry `json:"recent"`
}

const recentLimit = 10

type Engine struct {
	store   Store
	catalog *entitlements.Catalog
	now     func() time.Time
	newID   func() string
}

type Option func(*Engine)

// WithClock overrides the time source used for period boundaries and entry
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, catalog *entitlements.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AdmitAndRecord checks the user's plan against the request profile and, if
// allowed, records one usage entry. Check and record happen as one atomic
// step per user, so concurrent callers can never exceed the quota together.
// Denials have no side effects. Errors are either ErrStoreUnavailable or
// entitlements.ErrUnknownPlan.
func (e *Engine) AdmitAndRecord(ctx context.Context, userID string, p Profile) (*Admission, error) {
	if strings.TrimSpace(userID) == "" {
		return &Admission{Code: DenialUnauthenticated, Reason: "Authentication required"}, nil
	}

	var result *Admission
	err := e.store.Atomically(ctx, userID, func(l Ledger) error {
		now := e.now().UTC()
		adm, err := e.assess(l, userID, p, now)
		if err != nil {
			return err
		}
		result = adm
		if adm.Code != "" {
			return nil
		}

		entry := &models.UsageEntry{
			ID:     e.newID(),
			UserID: userID,
			Label:  p.Label,
			Profile: datatypes.NewJSONType(models.UsageProfile{
				Tier:         string(p.Tier),
				SizeBytes:    p.SizeBytes,
				HighFidelity: p.HighFidelity,
			}),
			CreatedAt: now,
		}
		if err := l.Append(entry); err != nil {
			return storeErr(err)
		}
		result.Admitted = true
		result.Used++
		result.Remaining = remaining(result.Limit, result.Used)
		result.Entry = entry
		return nil
	})
	if err != nil {
		err = normalizeErr(err)
		log.Errorf("[Usage] admission for user %s failed: %v", userID, err)
		return nil, err
	}
	return result, nil
}

// Check answers whether AdmitAndRecord would admit p right now without
// recording anything or taking the user's lock. A concurrent admission may
// still take the last unit before the caller acts on the answer.
func (e *Engine) Check(ctx context.Context, userID string, p Profile) (*Admission, error) {
	if strings.TrimSpace(userID) == "" {
		return &Admission{Code: DenialUnauthenticated, Reason: "Authentication required"}, nil
	}

	var result *Admission
	err := e.store.Read(ctx, userID, func(r Reader) error {
		adm, err := e.assess(r, userID, p, e.now().UTC())
		if err != nil {
			return err
		}
		adm.Admitted = adm.Code == ""
		result = adm
		return nil
	})
	if err != nil {
		return nil, normalizeErr(err)
	}
	return result, nil
}

// assess evaluates the feature gates and the quota for p. The returned
// admission carries a denial code or none; it is never marked admitted.
func (e *Engine) assess(r Reader, userID string, p Profile, now time.Time) (*Admission, error) {
	plan, sub, err := e.planFor(r, userID)
	if err != nil {
		return nil, err
	}
	n, err := r.CountSince(userID, PeriodStart(sub.CurrentPeriodEnd, now))
	if err != nil {
		return nil, storeErr(err)
	}
	used := int(n)
	adm := &Admission{
		Used:      used,
		Limit:     plan.QuotaPerPeriod,
		Remaining: remaining(plan.QuotaPerPeriod, used),
		Plan:      plan.ID,
	}

	if feature, reason, denied := checkFeatures(plan, p); denied {
		adm.Code = DenialFeature
		adm.Feature = feature
		adm.Reason = reason
		return adm, nil
	}
	if used >= plan.QuotaPerPeriod {
		adm.Code = DenialQuota
		adm.Reason = fmt.Sprintf("Limit of %d separations per billing period reached", plan.QuotaPerPeriod)
	}
	return adm, nil
}

// Stats reports the user's consumption in the current period plus the most
// recent entries. It reads without the admission lock.
func (e *Engine) Stats(ctx context.Context, userID string) (*Stats, error) {
	var stats *Stats
	err := e.store.Read(ctx, userID, func(r Reader) error {
		plan, sub, err := e.planFor(r, userID)
		if err != nil {
			return err
		}
		now := e.now().UTC()
		start := PeriodStart(sub.CurrentPeriodEnd, now)
		n, err := r.CountSince(userID, start)
		if err != nil {
			return storeErr(err)
		}
		stats = &Stats{
			Plan:        plan.ID,
			Status:      sub.Status,
			Used:        int(n),
			Limit:       plan.QuotaPerPeriod,
			Remaining:   remaining(plan.QuotaPerPeriod, int(n)),
			PeriodStart: start,
			PeriodEnd:   PeriodEnd(sub.CurrentPeriodEnd, now),
		}
		return nil
	})
	if err != nil {
		return nil, normalizeErr(err)
	}
	recent, err := e.store.Recent(ctx, userID, recentLimit)
	if err != nil {
		return nil, storeErr(err)
	}
	stats.Recent = recent
	return stats, nil
}

func (e *Engine) planFor(l Reader, userID string) (entitlements.Plan, *models.Subscription, error) {
	sub, err := l.Subscription(userID)
	if err != nil {
		return entitlements.Plan{}, nil, storeErr(err)
	}
	if sub == nil {
		d := models.DefaultSubscription(userID)
		sub = &d
	}
	if sub.Plan == models.PlanFree {
		// free users always count by calendar month
		sub.CurrentPeriodEnd = nil
	}
	plan, err := e.catalog.Resolve(sub.Plan)
	if err != nil {
		return entitlements.Plan{}, nil, err
	}
	return plan, sub, nil
}

// checkFeatures applies the feature gates in fixed order: tier, size, quality.
func checkFeatures(plan entitlements.Plan, p Profile) (feature, reason string, denied bool) {
	if !plan.AllowsTier(p.Tier) {
		return FeatureTier, fmt.Sprintf("The %s model is not available on the %s plan", p.Tier, plan.Name), true
	}
	if p.SizeBytes > plan.MaxInputBytes() {
		return FeatureInputSize, fmt.Sprintf("File size exceeds the %dMB limit of the %s plan", plan.MaxInputSizeMb, plan.Name), true
	}
	if p.HighFidelity && !plan.HighFidelityAllowed {
		return FeatureHighFidelity, fmt.Sprintf("High fidelity mode is not available on the %s plan", plan.Name), true
	}
	return "", "", false
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}

func storeErr(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// normalizeErr keeps the two error kinds callers can tell apart.
func normalizeErr(err error) error {
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, entitlements.ErrUnknownPlan) {
		return err
	}
	return storeErr(err)
}
