// Package feed ingests normalized venue quotes from external transports and
// hands them to a Handler.
//
// Every transport carries the same JSON document, either one object or an
// array of them:
//
//	{"venue":"binance","symbol":"ETH-USDT","bid":"1999.5","ask":"2000.1",
//	 "bid_size":"4.2","ask_size":"3.1","ts":"2026-03-01T12:00:00.123Z"}
//
// Decimal fields may be JSON strings or numbers; both are parsed from their
// literal text. A missing ts takes the receive time.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

// Update is one decoded quote, not yet validated.
type Update struct {
	Venue      domain.VenueID `json:"venue"`
	Symbol     domain.Symbol  `json:"symbol"`
	Bid        exact.Decimal  `json:"bid"`
	Ask        exact.Decimal  `json:"ask"`
	BidSize    exact.Decimal  `json:"bid_size"`
	AskSize    exact.Decimal  `json:"ask_size"`
	ObservedAt time.Time      `json:"ts"`
}

// Handler consumes updates. An error drops that update only.
type Handler func(ctx context.Context, u Update) error

var errEmptyPayload = errors.New("feed: empty payload")

// Decode parses a payload into updates, stamping receivedAt where ts is
// absent.
func Decode(data []byte, receivedAt time.Time) ([]Update, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errEmptyPayload
	}

	var ups []Update
	if data[0] == '[' {
		if err := json.Unmarshal(data, &ups); err != nil {
			return nil, fmt.Errorf("feed: decode batch: %w", err)
		}
	} else {
		var u Update
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("feed: decode: %w", err)
		}
		ups = []Update{u}
	}
	for i := range ups {
		if ups[i].ObservedAt.IsZero() {
			ups[i].ObservedAt = receivedAt
		}
	}
	return ups, nil
}
