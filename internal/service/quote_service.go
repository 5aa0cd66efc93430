package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
	"github.com/October-1030/AAOKX-sub001/internal/feed"
)

// QuoteSink is the engine's ingestion surface.
type QuoteSink interface {
	Accept(venue domain.VenueID, symbol domain.Symbol, bid, ask, bidSize, askSize exact.Decimal, observedAt time.Time) (domain.Quote, bool, error)
}

// QuoteService feeds decoded updates to the engine and mirrors accepted
// quotes to the cache and the quotes channel. cache and bus may be nil.
type QuoteService struct {
	sink   QuoteSink
	cache  domain.QuoteCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewQuoteService creates a QuoteService.
func NewQuoteService(sink QuoteSink, cache domain.QuoteCache, bus domain.SignalBus, logger *slog.Logger) *QuoteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteService{
		sink:   sink,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "quote_service")),
	}
}

// Handle is a feed.Handler. Only invalid quotes return an error; mirror
// failures are logged.
func (s *QuoteService) Handle(ctx context.Context, u feed.Update) error {
	q, fresh, err := s.sink.Accept(u.Venue, u.Symbol, u.Bid, u.Ask, u.BidSize, u.AskSize, u.ObservedAt)
	if err != nil {
		return fmt.Errorf("quote_service: %w", err)
	}
	if !fresh {
		return nil
	}

	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, q); err != nil {
			s.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("venue", string(q.Venue)),
				slog.String("symbol", string(q.Symbol)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		data, _ := json.Marshal(q)
		if err := s.bus.Publish(ctx, domain.ChannelQuotes, data); err != nil {
			s.logger.WarnContext(ctx, "publish quote failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Warm replays cached quotes into the engine after a restart. Quotes older
// than the staleness window are kept by the store but never scanned.
func (s *QuoteService) Warm(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	syms, err := s.cache.Symbols(ctx)
	if err != nil {
		return 0, fmt.Errorf("quote_service: warm: %w", err)
	}
	n := 0
	for _, sym := range syms {
		qs, err := s.cache.GetQuotes(ctx, sym)
		if err != nil {
			return n, fmt.Errorf("quote_service: warm %s: %w", sym, err)
		}
		for _, q := range qs {
			if _, ok, err := s.sink.Accept(q.Venue, q.Symbol, q.Bid, q.Ask, q.BidSize, q.AskSize, q.ObservedAt); err == nil && ok {
				n++
			}
		}
	}
	s.logger.InfoContext(ctx, "quotes restored from cache", slog.Int("quotes", n), slog.Int("symbols", len(syms)))
	return n, nil
}
