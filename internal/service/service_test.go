package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
	"github.com/October-1030/AAOKX-sub001/internal/feed"
)

// ── fakes ──

type fakeSink struct {
	accepted []domain.Quote
	stale    bool
}

func (f *fakeSink) Accept(venue domain.VenueID, symbol domain.Symbol, bid, ask, bidSize, askSize exact.Decimal, at time.Time) (domain.Quote, bool, error) {
	q, err := domain.NewQuote(venue, symbol, bid, ask, bidSize, askSize, at)
	if err != nil {
		return domain.Quote{}, false, err
	}
	if f.stale {
		return q, false, nil
	}
	f.accepted = append(f.accepted, q)
	return q, true, nil
}

type fakeCache struct {
	quotes map[domain.Symbol][]domain.Quote
	err    error
}

func (c *fakeCache) SetQuote(_ context.Context, q domain.Quote) error {
	if c.err != nil {
		return c.err
	}
	if c.quotes == nil {
		c.quotes = map[domain.Symbol][]domain.Quote{}
	}
	c.quotes[q.Symbol] = append(c.quotes[q.Symbol], q)
	return nil
}

func (c *fakeCache) GetQuote(context.Context, domain.VenueID, domain.Symbol) (domain.Quote, error) {
	return domain.Quote{}, domain.ErrNotFound
}

func (c *fakeCache) GetQuotes(_ context.Context, s domain.Symbol) ([]domain.Quote, error) {
	return c.quotes[s], nil
}

func (c *fakeCache) Symbols(context.Context) ([]domain.Symbol, error) {
	var out []domain.Symbol
	for s := range c.quotes {
		out = append(out, s)
	}
	return out, nil
}

type published struct {
	channel string
	data    []byte
}

type fakeBus struct {
	pubs    []published
	streams []published
}

func (b *fakeBus) Publish(_ context.Context, ch string, data []byte) error {
	b.pubs = append(b.pubs, published{ch, data})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, s string, data []byte) (string, error) {
	b.streams = append(b.streams, published{s, data})
	return "1-0", nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int64, time.Duration) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeStore struct {
	rows    map[string]domain.OpportunityRecord
	upserts int
	failAll bool
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]domain.OpportunityRecord{}} }

func (s *fakeStore) Upsert(_ context.Context, o domain.Opportunity) error {
	if s.failAll {
		return errors.New("db down")
	}
	s.upserts++
	rec := s.rows[o.ID]
	if rec.ClosedAt != nil {
		return nil
	}
	rec.Opportunity = o
	s.rows[o.ID] = rec
	return nil
}

func (s *fakeStore) Close(_ context.Context, id string, reason domain.CloseReason, at time.Time) error {
	rec, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.ClosedAt = &at
	rec.CloseReason = reason
	s.rows[id] = rec
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (domain.OpportunityRecord, error) {
	rec, ok := s.rows[id]
	if !ok {
		return domain.OpportunityRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) ListRecent(context.Context, domain.ListOpts) ([]domain.OpportunityRecord, error) {
	var out []domain.OpportunityRecord
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) ListClosedBefore(context.Context, time.Time, int) ([]domain.OpportunityRecord, error) {
	return nil, nil
}

func (s *fakeStore) DeleteByIDs(context.Context, []string) (int64, error) { return 0, nil }

type fakeAudit struct{ events []string }

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func update(venue string, bid string) feed.Update {
	return feed.Update{
		Venue: domain.VenueID(venue), Symbol: "ETH-USDT",
		Bid: exact.MustParse(bid), Ask: exact.MustParse("2001"),
		BidSize: exact.One, AskSize: exact.One,
		ObservedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func opportunity(id string) domain.Opportunity {
	return domain.Opportunity{
		ID:               id,
		Key:              domain.NewOpportunityKey("ETH-USDT", "binance", "kraken"),
		Symbol:           "ETH-USDT",
		BuyVenue:         "binance",
		SellVenue:        "kraken",
		NetProfitPercent: exact.MustParse("1.0889"),
	}
}

// ── QuoteService ──

func TestQuoteService_HandleMirrorsAcceptedQuotes(t *testing.T) {
	sink, cache, bus := &fakeSink{}, &fakeCache{}, &fakeBus{}
	svc := NewQuoteService(sink, cache, bus, nil)

	require.NoError(t, svc.Handle(context.Background(), update("binance", "2000")))
	require.Len(t, sink.accepted, 1)
	assert.Len(t, cache.quotes["ETH-USDT"], 1)
	require.Len(t, bus.pubs, 1)
	assert.Equal(t, domain.ChannelQuotes, bus.pubs[0].channel)
	assert.Contains(t, string(bus.pubs[0].data), `"bid":"2000"`)

	sink.stale = true
	require.NoError(t, svc.Handle(context.Background(), update("binance", "2000")))
	assert.Len(t, bus.pubs, 1, "stale quotes are not mirrored")
}

func TestQuoteService_InvalidAndMirrorFailure(t *testing.T) {
	sink := &fakeSink{}
	svc := NewQuoteService(sink, &fakeCache{err: errors.New("redis down")}, nil, nil)

	err := svc.Handle(context.Background(), update("binance", "-1"))
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	assert.NoError(t, svc.Handle(context.Background(), update("binance", "2000")))
	assert.Len(t, sink.accepted, 1)
}

func TestQuoteService_Warm(t *testing.T) {
	cache := &fakeCache{}
	seed := NewQuoteService(&fakeSink{}, cache, nil, nil)
	require.NoError(t, seed.Handle(context.Background(), update("binance", "2000")))
	require.NoError(t, seed.Handle(context.Background(), update("kraken", "2000")))

	sink := &fakeSink{}
	n, err := NewQuoteService(sink, cache, nil, nil).Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sink.accepted, 2)

	n, err = NewQuoteService(sink, nil, nil, nil).Warm(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ── OpportunityRecorder ──

func TestRecorder_DetectThenClose(t *testing.T) {
	store, bus, audit := newFakeStore(), &fakeBus{}, &fakeAudit{}
	rec := NewOpportunityRecorder(store, bus, audit, nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	o := opportunity("opp-1")
	require.NoError(t, rec.Handle(ctx, domain.NewDetectedEvent(o, at)))
	o.Refreshes = 3
	require.NoError(t, rec.Handle(ctx, domain.NewExpiredEvent(o, domain.CloseExpired, at.Add(time.Minute))))

	row := store.rows["opp-1"]
	require.NotNil(t, row.ClosedAt)
	assert.Equal(t, domain.CloseExpired, row.CloseReason)
	assert.Equal(t, 3, row.Refreshes)
	assert.Equal(t, []string{"opportunity.detected", "opportunity.closed"}, audit.events)

	require.Len(t, bus.pubs, 2)
	require.Len(t, bus.streams, 2)
	assert.Equal(t, domain.StreamOpportunityEvents, bus.streams[0].channel)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(bus.pubs[1].data, &ev))
	assert.Equal(t, domain.EventOpportunityExpired, ev.Type)
	assert.Equal(t, domain.CloseExpired, ev.Reason)
}

func TestRecorder_IgnoresQuotesAndSurfacesStoreErrors(t *testing.T) {
	store, bus := newFakeStore(), &fakeBus{}
	rec := NewOpportunityRecorder(store, bus, nil, nil)
	ctx := context.Background()

	q, err := domain.NewQuote("a", "X", exact.One, exact.One, exact.One, exact.One, time.Now())
	require.NoError(t, err)
	require.NoError(t, rec.Handle(ctx, domain.NewQuoteEvent(q, time.Now())))
	assert.Empty(t, bus.pubs)

	store.failAll = true
	err = rec.Handle(ctx, domain.NewDetectedEvent(opportunity("opp-2"), time.Now()))
	assert.Error(t, err)
	assert.Len(t, bus.pubs, 1, "bus still receives the event")
}

func TestRecorder_RunWithoutBackends(t *testing.T) {
	rec := NewOpportunityRecorder(nil, nil, nil, nil)
	ch := make(chan domain.Event, 1)
	ch <- domain.NewDetectedEvent(opportunity("opp-3"), time.Now())
	close(ch)
	assert.NoError(t, rec.Run(context.Background(), ch))
}

type captureAlerter struct{ titles []string }

func (c *captureAlerter) Notify(_ context.Context, _, title, _ string) error {
	c.titles = append(c.titles, title)
	return nil
}

func TestRunAlerts(t *testing.T) {
	ch := make(chan domain.Event, 2)
	ch <- domain.NewDetectedEvent(opportunity("opp-4"), time.Now())
	ch <- domain.NewExpiredEvent(opportunity("opp-4"), domain.CloseInvalidated, time.Now())
	close(ch)

	a := &captureAlerter{}
	require.NoError(t, RunAlerts(context.Background(), ch, a, nil))
	require.Len(t, a.titles, 2)
	assert.Contains(t, a.titles[1], "invalidated")
}

// ── OpportunityService ──

type fakeBook struct {
	live []domain.Opportunity
}

func (b *fakeBook) ListLive() []domain.Opportunity { return b.live }
func (b *fakeBook) Get(id string) (domain.Opportunity, bool) {
	for _, o := range b.live {
		if o.ID == id {
			return o, true
		}
	}
	return domain.Opportunity{}, false
}
func (b *fakeBook) Revalidate(id string) domain.ValidationResult {
	if _, ok := b.Get(id); !ok {
		return domain.ValidationResult{Reason: domain.ValidationNotFound}
	}
	return domain.ValidationResult{Valid: true, Reason: domain.ValidationOK}
}
func (b *fakeBook) Quotes(domain.Symbol) []domain.Quote { return nil }
func (b *fakeBook) Symbols() []domain.Symbol          { return []domain.Symbol{"ETH-USDT"} }

func TestOpportunityService(t *testing.T) {
	btc := opportunity("opp-b")
	btc.Symbol = "BTC-USDT"
	btc.BuyVenue = "okx"
	btc.SellVenue = "bybit"
	book := &fakeBook{live: []domain.Opportunity{opportunity("opp-a"), btc}}
	ctx := context.Background()

	svc := NewOpportunityService(book, nil)
	assert.False(t, svc.HistoryEnabled())
	assert.Len(t, svc.Live(Filter{}), 2)
	assert.Len(t, svc.Live(Filter{Symbol: "BTC-USDT"}), 1)
	assert.Len(t, svc.Live(Filter{Venue: "kraken"}), 1)
	assert.Len(t, svc.Live(Filter{Limit: 1}), 1)

	_, err := svc.Get(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.History(ctx, domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	store := newFakeStore()
	closedAt := time.Now()
	store.rows["old"] = domain.OpportunityRecord{Opportunity: opportunity("old"), ClosedAt: &closedAt, CloseReason: domain.CloseExpired}
	svc = NewOpportunityService(book, store)

	rec, err := svc.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, domain.CloseExpired, rec.CloseReason)
	rec, err = svc.Get(ctx, "opp-a")
	require.NoError(t, err)
	assert.Nil(t, rec.ClosedAt)

	hist, err := svc.History(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	assert.True(t, svc.Revalidate("opp-a").Valid)
	assert.Equal(t, domain.ValidationNotFound, svc.Revalidate("x").Reason)
}
