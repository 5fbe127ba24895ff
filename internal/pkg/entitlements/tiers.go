package entitlements

// Tier is a processing quality level offered by the upstream model.
type Tier string

const (
	TierSmall   Tier = "small"
	TierBase    Tier = "base"
	TierLarge   Tier = "large"
	TierLargeTV Tier = "large-tv"
)

// TierInfo describes a tier for the public model listing.
type TierInfo struct {
	ID           Tier   `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Acceleration string `json:"acceleration"`
}

// DefaultTier is used when a request does not name one.
const DefaultTier = TierLarge

var tiers = []TierInfo{
	{ID: TierSmall, Name: "Fast", Description: "Quick processing, good for simple audio", Acceleration: "fast"},
	{ID: TierBase, Name: "Balanced", Description: "Good balance of speed and quality", Acceleration: "balanced"},
	{ID: TierLarge, Name: "Best Quality", Description: "Highest quality separation", Acceleration: "quality"},
	{ID: TierLargeTV, Name: "Video Optimized", Description: "Best for separating audio from video files", Acceleration: "quality"},
}

// Tiers returns every known tier in display order.
func Tiers() []TierInfo {
	out := make([]TierInfo, len(tiers))
	copy(out, tiers)
	return out
}

// LookupTier returns the tier description for id.
func LookupTier(id Tier) (TierInfo, bool) {
	for _, t := range tiers {
		if t.ID == id {
			return t, true
		}
	}
	return TierInfo{}, false
}

// Acceleration maps a tier to the upstream acceleration setting. Unknown
// tiers fall back to "balanced".
func Acceleration(id Tier) string {
	if t, ok := LookupTier(id); ok {
		return t.Acceleration
	}
	return "balanced"
}
