package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVenues() domain.VenueBook {
	mk := func(id string) domain.VenueProfile {
		return domain.VenueProfile{
			ID:                  domain.VenueID(id),
			TakerFeePercent:     d("0.05"),
			MaxSlippagePercent:  d("0.1"),
			TypicalLatencyMs:    50,
			ReputationRiskUnits: 2,
		}
	}
	fallback := domain.VenueProfile{
		TakerFeePercent:     d("0.05"),
		MaxSlippagePercent:  d("0.1"),
		TypicalLatencyMs:    50,
		ReputationRiskUnits: 2,
	}
	return domain.NewVenueBook([]domain.VenueProfile{mk("A"), mk("B")}, fallback)
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *fakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := &fakeClock{now: t0}
	e, err := NewEngine(cfg, testVenues(), nil, discardLogger(), WithClock(clock.Now), WithIDGenerator(seqIDs()))
	require.NoError(t, err)
	return e, clock
}

func push(t *testing.T, e *Engine, venue, bid, ask string, at time.Time) {
	t.Helper()
	require.NoError(t, e.OnQuote(domain.VenueID(venue), "BTC", d(bid), d(ask), d("1.0"), d("1.0"), at))
}

func seedBTC(t *testing.T, e *Engine) {
	push(t, e, "A", "100.00", "100.10", t0)
	push(t, e, "B", "101.50", "101.60", t0)
}

func TestEndToEndDetection(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	events, cancel := e.Subscribe(8)
	defer cancel()

	seedBTC(t, e)
	st := e.ScanOnce(t0)
	assert.Equal(t, 1, st.Symbols)
	assert.Equal(t, 2, st.Pairs)
	assert.Equal(t, 1, st.Detected)

	live := e.ListLive()
	require.Len(t, live, 1)
	opp := live[0]
	assert.Equal(t, domain.VenueID("A"), opp.BuyVenue)
	assert.Equal(t, domain.VenueID("B"), opp.SellVenue)
	assert.Equal(t, domain.DirectionForward, opp.Key.Direction)
	assert.Equal(t, "100.1", opp.BuyPrice.String())
	assert.Equal(t, "101.5", opp.SellPrice.String())
	assert.Equal(t, "1.3889", opp.GrossSpreadPercent.StringFixed(4))
	assert.Equal(t, "1.0889", opp.NetProfitPercent.StringFixed(4))
	assert.Equal(t, "1", opp.RecommendedSize.String())
	assert.Equal(t, "0.0109", opp.EstimatedProfit.StringFixed(4))
	assert.True(t, opp.RiskScore.LessThanOrEqual(exact.FromInt(40)))
	assert.True(t, opp.Confidence.GreaterThanOrEqual(exact.FromInt(60)))

	assert.Equal(t, 3, e.QueueDepth())
	assert.Equal(t, 3, e.DispatchOnce())
	select {
	case ev := <-events:
		assert.Equal(t, domain.EventOpportunityDetected, ev.Type)
		assert.Equal(t, opp.ID, ev.Opportunity.ID)
	default:
		t.Fatal("expected a detection event")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestRescanIsIdempotent(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	seedBTC(t, e)
	e.ScanOnce(t0)
	before := e.ListLive()[0]

	clock.Set(t0.Add(2 * time.Second))
	st := e.ScanOnce(t0.Add(2 * time.Second))
	assert.Equal(t, 0, st.Detected)
	assert.Equal(t, 1, st.Refreshed)

	after := e.ListLive()
	require.Len(t, after, 1)
	assert.Equal(t, before.ID, after[0].ID)
	assert.Equal(t, before.DetectedAt, after[0].DetectedAt)
	assert.True(t, after[0].ExpiresAt.After(before.ExpiresAt))
	assert.Equal(t, 1, e.registry.Count(before.Key))
}

func TestOpportunityExpiresWithoutRefresh(t *testing.T) {
	e, clock := newTestEngine(t, func(c *Config) { c.OpportunityTTL = 5 * time.Second })
	events, cancel := e.Subscribe(8)
	defer cancel()

	seedBTC(t, e)
	e.ScanOnce(t0)
	e.DispatchOnce()
	<-events

	// B's bid collapses, so later scans no longer refresh the entry.
	push(t, e, "B", "100.00", "100.20", t0.Add(time.Second))
	clock.Set(t0.Add(3 * time.Second))
	st := e.ScanOnce(t0.Add(3 * time.Second))
	assert.Equal(t, 0, st.Expired)
	assert.Len(t, e.ListLive(), 1)

	clock.Set(t0.Add(6 * time.Second))
	st = e.ScanOnce(t0.Add(6 * time.Second))
	assert.Equal(t, 1, st.Expired)
	assert.Empty(t, e.ListLive())

	e.DispatchOnce()
	ev := <-events
	assert.Equal(t, domain.EventOpportunityExpired, ev.Type)
	assert.Equal(t, domain.CloseExpired, ev.Reason)
}

func TestVanishedQuotesInvalidate(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	events, cancel := e.Subscribe(8)
	defer cancel()

	seedBTC(t, e)
	e.ScanOnce(t0)

	now := t0.Add(31 * time.Second)
	clock.Set(now)
	st := e.ScanOnce(now)
	assert.Equal(t, 1, st.Invalidated)
	assert.Empty(t, e.ListLive())

	// The detection is no longer live, so only the close is delivered.
	e.DispatchOnce()
	ev := <-events
	assert.Equal(t, domain.EventOpportunityExpired, ev.Type)
	assert.Equal(t, domain.CloseInvalidated, ev.Reason)
	select {
	case extra := <-events:
		t.Fatalf("unexpected event %s", extra.Type)
	default:
	}
}

func TestRevalidateAgainstCurrentQuotes(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	seedBTC(t, e)
	e.ScanOnce(t0)
	id := e.ListLive()[0].ID

	res := e.Revalidate(id)
	assert.True(t, res.Valid)
	assert.Equal(t, domain.ValidationOK, res.Reason)
	require.NotNil(t, res.Current)
	assert.Equal(t, id, res.Current.ID)

	push(t, e, "B", "100.05", "100.20", t0.Add(time.Second))
	clock.Set(t0.Add(time.Second))
	res = e.Revalidate(id)
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ValidationNoSpread, res.Reason)
	assert.False(t, e.IsValid(res.Snapshot.Key))

	assert.Equal(t, domain.ValidationNotFound, e.Revalidate("missing").Reason)
}

func TestUnknownVenueIsPenalized(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	seedBTC(t, e)
	require.NoError(t, e.OnQuote("C", "BTC", d("101.50"), d("101.60"), d("1"), d("1"), t0))
	e.ScanOnce(t0)

	live := e.ListLive()
	require.Len(t, live, 2)
	var known, unknown domain.Opportunity
	for _, o := range live {
		if o.SellVenue == "B" {
			known = o
		} else {
			unknown = o
		}
	}
	assert.Equal(t, "15", known.Confidence.Sub(unknown.Confidence).String())
}

func TestOnQuoteValidation(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	err := e.OnQuote("A", "BTC", d("-1"), d("100"), d("1"), d("1"), t0)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Empty(t, e.Symbols())

	push(t, e, "A", "100", "101", t0.Add(time.Second))
	push(t, e, "A", "90", "91", t0)
	qs := e.Quotes("BTC")
	require.Len(t, qs, 1)
	assert.Equal(t, "100", qs[0].Bid.String())
	assert.Equal(t, 1, e.QueueDepth())
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpportunityTTL = -time.Second
	cfg.MinProfitPercent = d("-0.1")
	_, err := NewEngine(cfg, testVenues(), nil, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "opportunity_ttl")
	assert.Contains(t, err.Error(), "min_profit_percent")
}

func TestDispatchPriorityAndSlowSubscriber(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	all, cancelAll := e.Subscribe(10, domain.EventQuoteUpdated, domain.EventOpportunityDetected, domain.EventOpportunityExpired)
	defer cancelAll()
	slow, cancelSlow := e.Subscribe(1, domain.EventQuoteUpdated)
	defer cancelSlow()

	seedBTC(t, e)
	e.ScanOnce(t0)
	e.DispatchOnce()

	first := <-all
	assert.Equal(t, domain.EventOpportunityDetected, first.Type)
	second, third := <-all, <-all
	assert.Equal(t, domain.EventQuoteUpdated, second.Type)
	assert.Equal(t, domain.EventQuoteUpdated, third.Type)
	assert.Less(t, second.Sequence, third.Sequence)

	// The slow subscriber kept one quote update and lost the other.
	assert.Len(t, slow, 1)
}

func TestDispatchBatchBound(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.MaxBatchSize = 2 })
	seedBTC(t, e)
	push(t, e, "A", "100.00", "100.10", t0.Add(time.Millisecond))

	assert.Equal(t, 2, e.DispatchOnce())
	assert.Equal(t, 1, e.QueueDepth())
	assert.Equal(t, 1, e.DispatchOnce())
	assert.Equal(t, 0, e.DispatchOnce())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ch, cancel := e.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRunDeliversAndStops(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.ScanInterval = 5 * time.Millisecond
		c.DispatchInterval = 2 * time.Millisecond
	})
	events, _ := e.Subscribe(8)
	seedBTC(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventOpportunityDetected, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no detection delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	for range events {
	}
}
