package models

import "strings"

type Tier string

const (
	TierAlpha Tier = "ALPHA"
	TierBeta  Tier = "BETA"
	TierDelta Tier = "DELTA"
	TierOmega Tier = "OMEGA"
	TierTitan Tier = "TITAN"
)

// Tiers lists every tier from smallest to largest.
var Tiers = []Tier{TierAlpha, TierBeta, TierDelta, TierOmega, TierTitan}

// ParseTier is lenient: tiers only steer matching, so an unknown value
// falls back to the lowest tier instead of failing.
func ParseTier(raw string) Tier {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Tiers {
		if t == known {
			return t
		}
	}
	return TierAlpha
}

// Rank is the tier's position, 0 for ALPHA.
func (t Tier) Rank() int {
	for i, known := range Tiers {
		if t == known {
			return i
		}
	}
	return 0
}
