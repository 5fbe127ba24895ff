package entitlements

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clearaudio/gateway/app/models"
)

var ErrUnknownPlan = errors.New("entitlements: unknown plan")

// Plan is an immutable bundle of limits. It is never persisted; users
// reference it by ID.
type Plan struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	QuotaPerPeriod      int    `json:"quota_per_period"`
	MaxInputSizeMb      int    `json:"max_input_size_mb"`
	AllowedTiers        []Tier `json:"allowed_tiers"`
	HighFidelityAllowed bool   `json:"high_fidelity_allowed"`
	PriceCents          int64  `json:"price_cents"`
	ProviderPriceID     string `json:"-"`
}

// AllowsTier reports whether t is in the plan's tier set.
func (p Plan) AllowsTier(t Tier) bool {
	for _, allowed := range p.AllowedTiers {
		if allowed == t {
			return true
		}
	}
	return false
}

// MaxInputBytes is the size ceiling in bytes (MB = 1024*1024).
func (p Plan) MaxInputBytes() int64 {
	return int64(p.MaxInputSizeMb) * 1024 * 1024
}

func (p Plan) clone() Plan {
	p.AllowedTiers = append([]Tier(nil), p.AllowedTiers...)
	return p
}

// Catalog is the static registry of plans, loaded once at startup.
type Catalog struct {
	plans map[string]Plan
	order []string
}

// NewCatalog validates and registers plans. Order is preserved for listing.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("entitlements: plan id is required")
		}
		if _, dup := c.plans[id]; dup {
			return nil, fmt.Errorf("entitlements: duplicate plan %q", id)
		}
		if p.QuotaPerPeriod < 0 || p.MaxInputSizeMb <= 0 {
			return nil, fmt.Errorf("entitlements: plan %q has invalid limits", id)
		}
		if len(p.AllowedTiers) == 0 {
			return nil, fmt.Errorf("entitlements: plan %q allows no tiers", id)
		}
		for _, t := range p.AllowedTiers {
			if _, ok := LookupTier(t); !ok {
				return nil, fmt.Errorf("entitlements: plan %q references unknown tier %q", id, t)
			}
		}
		p.ID = id
		c.plans[id] = p.clone()
		c.order = append(c.order, id)
	}
	if _, ok := c.plans[models.PlanFree]; !ok {
		return nil, errors.New("entitlements: catalog must define the free plan")
	}
	return c, nil
}

// DefaultCatalog returns the two shipped plans. proPriceID is the billing
// provider's recurring price for the pro plan.
func DefaultCatalog(proPriceID string) *Catalog {
	c, err := NewCatalog(
		Plan{
			ID:                  models.PlanFree,
			Name:                "Free",
			QuotaPerPeriod:      3,
			MaxInputSizeMb:      10,
			AllowedTiers:        []Tier{TierSmall, TierBase},
			HighFidelityAllowed: false,
			PriceCents:          0,
		},
		Plan{
			ID:                  models.PlanPro,
			Name:                "Pro",
			QuotaPerPeriod:      100,
			MaxInputSizeMb:      100,
			AllowedTiers:        []Tier{TierSmall, TierBase, TierLarge, TierLargeTV},
			HighFidelityAllowed: true,
			PriceCents:          1200,
			ProviderPriceID:     proPriceID,
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Resolve returns the plan for id. An unknown id is a configuration error,
// never a silent downgrade.
func (c *Catalog) Resolve(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
	}
	return p.clone(), nil
}

// Plans lists the registered plans in registration order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id].clone())
	}
	return out
}
