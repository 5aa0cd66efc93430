package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

// LiveBook is the engine's query surface.
type LiveBook interface {
	ListLive() []domain.Opportunity
	Get(id string) (domain.Opportunity, bool)
	Revalidate(id string) domain.ValidationResult
	Quotes(symbol domain.Symbol) []domain.Quote
	Symbols() []domain.Symbol
}

// Filter narrows ListLive results. Zero fields match everything.
type Filter struct {
	Symbol domain.Symbol
	Venue  domain.VenueID
	Limit  int
}

// OpportunityService answers API queries over live opportunities and,
// when a store is configured, their history.
type OpportunityService struct {
	book  LiveBook
	store domain.OpportunityStore
}

// NewOpportunityService creates an OpportunityService. store may be nil.
func NewOpportunityService(book LiveBook, store domain.OpportunityStore) *OpportunityService {
	return &OpportunityService{book: book, store: store}
}

// HistoryEnabled reports whether history queries can be served.
func (s *OpportunityService) HistoryEnabled() bool {
	return s.store != nil
}

// Live returns live opportunities in engine order, filtered.
func (s *OpportunityService) Live(f Filter) []domain.Opportunity {
	all := s.book.ListLive()
	out := make([]domain.Opportunity, 0, len(all))
	for _, o := range all {
		if f.Symbol != "" && o.Symbol != f.Symbol {
			continue
		}
		if f.Venue != "" && o.BuyVenue != f.Venue && o.SellVenue != f.Venue {
			continue
		}
		out = append(out, o)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Get looks in the live set first and then in history. It returns
// domain.ErrNotFound when neither has id.
func (s *OpportunityService) Get(ctx context.Context, id string) (domain.OpportunityRecord, error) {
	if o, ok := s.book.Get(id); ok {
		return domain.OpportunityRecord{Opportunity: o}, nil
	}
	if s.store == nil {
		return domain.OpportunityRecord{}, domain.ErrNotFound
	}
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OpportunityRecord{}, err
		}
		return domain.OpportunityRecord{}, fmt.Errorf("opportunity_service: get %s: %w", id, err)
	}
	return rec, nil
}

// Revalidate re-checks a live opportunity against current quotes.
func (s *OpportunityService) Revalidate(id string) domain.ValidationResult {
	return s.book.Revalidate(id)
}

// History pages through stored opportunities, newest first.
func (s *OpportunityService) History(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	if s.store == nil {
		return nil, domain.ErrNotConfigured
	}
	recs, err := s.store.ListRecent(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: history: %w", err)
	}
	return recs, nil
}

// Quotes returns the fresh quotes of symbol.
func (s *OpportunityService) Quotes(symbol domain.Symbol) []domain.Quote {
	return s.book.Quotes(symbol)
}

// Symbols returns the symbols with stored quotes.
func (s *OpportunityService) Symbols() []domain.Symbol {
	return s.book.Symbols()
}
