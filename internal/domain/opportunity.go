package domain

import (
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

// Direction distinguishes the two orientations of a venue pair. It is
// "forward" when the buy venue sorts before the sell venue.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// DirectionOf returns the direction of buying on buy and selling on sell.
func DirectionOf(buy, sell VenueID) Direction {
	if buy < sell {
		return DirectionForward
	}
	return DirectionReverse
}

// OpportunityKey is the deduplication identity of an opportunity. At most one
// live opportunity exists per key.
type OpportunityKey struct {
	Symbol    Symbol    `json:"symbol"`
	BuyVenue  VenueID   `json:"buy_venue"`
	SellVenue VenueID   `json:"sell_venue"`
	Direction Direction `json:"direction"`
}

// NewOpportunityKey derives the key of buying symbol on buy and selling it on sell.
func NewOpportunityKey(symbol Symbol, buy, sell VenueID) OpportunityKey {
	return OpportunityKey{Symbol: symbol, BuyVenue: buy, SellVenue: sell, Direction: DirectionOf(buy, sell)}
}

func (k OpportunityKey) String() string {
	return string(k.Symbol) + ":" + string(k.BuyVenue) + ">" + string(k.SellVenue) + ":" + string(k.Direction)
}

// Opportunity is a snapshot of a live cross-venue arbitrage. Consumers always
// receive copies.
type Opportunity struct {
	ID                 string         `json:"id"`
	Key                OpportunityKey `json:"key"`
	Symbol             Symbol         `json:"symbol"`
	BuyVenue           VenueID        `json:"buy_venue"`
	SellVenue          VenueID        `json:"sell_venue"`
	BuyPrice           exact.Decimal  `json:"buy_price"`
	SellPrice          exact.Decimal  `json:"sell_price"`
	GrossSpreadPercent exact.Decimal  `json:"gross_spread_percent"`
	FeesPercent        exact.Decimal  `json:"fees_percent"`
	SlippagePercent    exact.Decimal  `json:"slippage_percent"`
	NetProfitPercent   exact.Decimal  `json:"net_profit_percent"`
	EstimatedProfit    exact.Decimal  `json:"estimated_profit"`
	RecommendedSize    exact.Decimal  `json:"recommended_size"`
	DepthUsagePercent  exact.Decimal  `json:"depth_usage_percent"`
	RiskScore          exact.Decimal  `json:"risk_score"`
	Confidence         exact.Decimal  `json:"confidence"`
	DetectedAt         time.Time      `json:"detected_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
	Refreshes          int            `json:"refreshes"`
}

// Expired reports whether the opportunity is past its deadline at now.
func (o Opportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// CloseReason records why an opportunity left the live set.
type CloseReason string

const (
	CloseExpired     CloseReason = "expired"
	CloseInvalidated CloseReason = "invalidated"
)

// OpportunityRecord is the persisted history row of an opportunity.
type OpportunityRecord struct {
	Opportunity
	ClosedAt    *time.Time  `json:"closed_at,omitempty"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
}

// ValidationReason explains the outcome of a revalidation.
type ValidationReason string

const (
	ValidationOK            ValidationReason = "ok"
	ValidationNotFound      ValidationReason = "not_found"
	ValidationExpired       ValidationReason = "expired"
	ValidationQuotesMissing ValidationReason = "quotes_missing"
	ValidationNoSpread      ValidationReason = "no_spread"
	ValidationRejectedRisk  ValidationReason = "rejected_risk"
)

// ValidationResult is returned by a read-time revalidation. Current holds the
// figures recomputed from the latest fresh quotes when they could be
// computed.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Reason   ValidationReason `json:"reason"`
	Snapshot *Opportunity     `json:"snapshot,omitempty"`
	Current  *Opportunity     `json:"current,omitempty"`
}
