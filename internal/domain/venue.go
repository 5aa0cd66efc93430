package domain

import "github.com/October-1030/AAOKX-sub001/internal/exact"

// VenueProfile is the static cost and risk description of a venue. Profiles
// are loaded once from configuration and passed by value.
type VenueProfile struct {
	ID                  VenueID       `toml:"id" json:"id"`
	TakerFeePercent     exact.Decimal `toml:"taker_fee_percent" json:"taker_fee_percent"`
	MaxSlippagePercent  exact.Decimal `toml:"max_slippage_percent" json:"max_slippage_percent"`
	TypicalLatencyMs    uint32        `toml:"typical_latency_ms" json:"typical_latency_ms"`
	ReputationRiskUnits uint8         `toml:"reputation_risk_units" json:"reputation_risk_units"`
	MinOrderSize        exact.Decimal `toml:"min_order_size" json:"min_order_size"`

	// Known is false for profiles synthesized for venues that have no
	// configuration entry.
	Known bool `toml:"-" json:"known"`
}

// VenueBook resolves venue profiles, falling back to a default profile for
// venues that were never configured.
type VenueBook struct {
	profiles map[VenueID]VenueProfile
	fallback VenueProfile
}

// NewVenueBook indexes profiles by ID. fallback is returned, with its ID
// replaced and Known cleared, for any venue not in profiles.
func NewVenueBook(profiles []VenueProfile, fallback VenueProfile) VenueBook {
	m := make(map[VenueID]VenueProfile, len(profiles))
	for _, p := range profiles {
		p.Known = true
		m[p.ID] = p
	}
	fallback.Known = false
	return VenueBook{profiles: m, fallback: fallback}
}

// Lookup returns the profile for id.
func (b VenueBook) Lookup(id VenueID) VenueProfile {
	if p, ok := b.profiles[id]; ok {
		return p
	}
	p := b.fallback
	p.ID = id
	return p
}

// Profiles returns the configured profiles.
func (b VenueBook) Profiles() []VenueProfile {
	out := make([]VenueProfile, 0, len(b.profiles))
	for _, p := range b.profiles {
		out = append(out, p)
	}
	return out
}
