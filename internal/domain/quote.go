package domain

import (
	"fmt"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

// VenueID identifies an external trading venue, e.g. "binance".
type VenueID string

// Symbol identifies a traded instrument, e.g. "BTC-USD".
type Symbol string

// Quote is the top of book of one symbol on one venue. Quotes are immutable
// once built; a newer quote for the same (venue, symbol) supersedes the old
// one rather than mutating it.
type Quote struct {
	Venue      VenueID       `json:"venue"`
	Symbol     Symbol        `json:"symbol"`
	Bid        exact.Decimal `json:"bid"`
	Ask        exact.Decimal `json:"ask"`
	BidSize    exact.Decimal `json:"bid_size"`
	AskSize    exact.Decimal `json:"ask_size"`
	ObservedAt time.Time     `json:"observed_at"`
}

// NewQuote validates its inputs and returns a Quote. Zero prices and sizes
// are legal (they mean "no data" and never produce an opportunity); negative
// values and empty identifiers are caller bugs and fail with
// ErrInvariantViolation.
func NewQuote(venue VenueID, symbol Symbol, bid, ask, bidSize, askSize exact.Decimal, observedAt time.Time) (Quote, error) {
	if venue == "" || symbol == "" {
		return Quote{}, fmt.Errorf("domain: new quote: empty venue or symbol: %w", ErrInvariantViolation)
	}
	for name, v := range map[string]exact.Decimal{"bid": bid, "ask": ask, "bid_size": bidSize, "ask_size": askSize} {
		if v.IsNegative() {
			return Quote{}, fmt.Errorf("domain: new quote %s/%s: negative %s %s: %w", venue, symbol, name, v, ErrInvariantViolation)
		}
	}
	if observedAt.IsZero() {
		return Quote{}, fmt.Errorf("domain: new quote %s/%s: missing timestamp: %w", venue, symbol, ErrInvalidQuote)
	}
	return Quote{
		Venue:      venue,
		Symbol:     symbol,
		Bid:        bid,
		Ask:        ask,
		BidSize:    bidSize,
		AskSize:    askSize,
		ObservedAt: observedAt,
	}, nil
}

// HasPrices reports whether both sides carry a positive price.
func (q Quote) HasPrices() bool {
	return q.Bid.IsPositive() && q.Ask.IsPositive()
}

// Age is how old the quote is at now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}
