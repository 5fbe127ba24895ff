package entitlements

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogPlans(t *testing.T) {
	c := DefaultCatalog("price_123")

	free, err := c.Resolve("free")
	require.NoError(t, err)
	assert.Equal(t, 3, free.QuotaPerPeriod)
	assert.Equal(t, int64(10*1024*1024), free.MaxInputBytes())
	assert.True(t, free.AllowsTier(TierBase))
	assert.False(t, free.AllowsTier(TierLarge))
	assert.False(t, free.HighFidelityAllowed)

	pro, err := c.Resolve("pro")
	require.NoError(t, err)
	assert.Equal(t, 100, pro.QuotaPerPeriod)
	assert.True(t, pro.AllowsTier(TierLargeTV))
	assert.True(t, pro.HighFidelityAllowed)
	assert.Equal(t, "price_123", pro.ProviderPriceID)

	assert.Len(t, c.Plans(), 2)
	assert.Equal(t, "free", c.Plans()[0].ID)
}

func TestResolveUnknownPlan(t *testing.T) {
	c := DefaultCatalog("")
	_, err := c.Resolve("enterprise")
	assert.True(t, errors.Is(err, ErrUnknownPlan))
}

func TestResolveReturnsCopy(t *testing.T) {
	c := DefaultCatalog("")
	p, _ := c.Resolve("free")
	p.AllowedTiers[0] = TierLargeTV

	again, _ := c.Resolve("free")
	assert.Equal(t, TierSmall, again.AllowedTiers[0])
}

func TestNewCatalogValidation(t *testing.T) {
	base := Plan{ID: "free", QuotaPerPeriod: 1, MaxInputSizeMb: 1, AllowedTiers: []Tier{TierSmall}}

	tests := []struct {
		name  string
		plans []Plan
	}{
		{"missing id", []Plan{{QuotaPerPeriod: 1, MaxInputSizeMb: 1, AllowedTiers: []Tier{TierSmall}}}},
		{"duplicate", []Plan{base, base}},
		{"unknown tier", []Plan{{ID: "free", QuotaPerPeriod: 1, MaxInputSizeMb: 1, AllowedTiers: []Tier{"huge"}}}},
		{"no tiers", []Plan{{ID: "free", QuotaPerPeriod: 1, MaxInputSizeMb: 1}}},
		{"no free plan", []Plan{{ID: "pro", QuotaPerPeriod: 1, MaxInputSizeMb: 1, AllowedTiers: []Tier{TierSmall}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.plans...)
			assert.Error(t, err)
		})
	}

	_, err := NewCatalog(base)
	assert.NoError(t, err)
}

func TestAcceleration(t *testing.T) {
	assert.Equal(t, "fast", Acceleration(TierSmall))
	assert.Equal(t, "quality", Acceleration(TierLargeTV))
	assert.Equal(t, "balanced", Acceleration("unknown"))
	assert.Len(t, Tiers(), 4)
}
