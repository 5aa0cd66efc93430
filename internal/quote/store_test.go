package quote

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

var t0 = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func mkQuote(t *testing.T, venue, symbol, bid, ask string, at time.Time) domain.Quote {
	t.Helper()
	q, err := domain.NewQuote(domain.VenueID(venue), domain.Symbol(symbol),
		exact.MustParse(bid), exact.MustParse(ask), exact.One, exact.One, at)
	require.NoError(t, err)
	return q
}

func TestUpsertMonotonicPerKey(t *testing.T) {
	s := NewStore(0, 0)

	assert.True(t, s.Upsert(mkQuote(t, "a", "BTC", "100", "101", t0)))
	assert.True(t, s.Upsert(mkQuote(t, "a", "BTC", "102", "103", t0.Add(time.Second))))

	// Older and equal timestamps are dropped.
	assert.False(t, s.Upsert(mkQuote(t, "a", "BTC", "90", "91", t0)))
	assert.False(t, s.Upsert(mkQuote(t, "a", "BTC", "95", "96", t0.Add(time.Second))))

	q, ok := s.Get("a", "BTC")
	require.True(t, ok)
	assert.Equal(t, "102", q.Bid.String())
	assert.Equal(t, 1, s.Len())
}

func TestQuotesForFiltersStaleAndSorts(t *testing.T) {
	s := NewStore(30*time.Second, 60*time.Second)
	s.Upsert(mkQuote(t, "c", "BTC", "1", "2", t0))
	s.Upsert(mkQuote(t, "a", "BTC", "1", "2", t0))
	s.Upsert(mkQuote(t, "b", "BTC", "1", "2", t0.Add(-45*time.Second)))
	s.Upsert(mkQuote(t, "a", "ETH", "1", "2", t0))

	got := s.QuotesFor("BTC", t0.Add(10*time.Second))
	require.Len(t, got, 2)
	assert.Equal(t, domain.VenueID("a"), got[0].Venue)
	assert.Equal(t, domain.VenueID("c"), got[1].Venue)

	_, ok := s.Fresh("b", "BTC", t0)
	assert.False(t, ok)
	_, ok = s.Get("b", "BTC")
	assert.True(t, ok, "stale quotes stay stored until swept")

	assert.Empty(t, s.QuotesFor("DOGE", t0))
	assert.Equal(t, []domain.Symbol{"BTC", "ETH"}, s.Symbols())
}

func TestStalenessBoundaryIsInclusive(t *testing.T) {
	s := NewStore(30*time.Second, 60*time.Second)
	s.Upsert(mkQuote(t, "a", "BTC", "1", "2", t0))

	_, ok := s.Fresh("a", "BTC", t0.Add(30*time.Second))
	assert.True(t, ok)
	_, ok = s.Fresh("a", "BTC", t0.Add(30*time.Second+time.Millisecond))
	assert.False(t, ok)
}

func TestSweepStale(t *testing.T) {
	s := NewStore(30*time.Second, 60*time.Second)
	s.Upsert(mkQuote(t, "a", "BTC", "1", "2", t0))
	s.Upsert(mkQuote(t, "b", "BTC", "1", "2", t0.Add(50*time.Second)))
	s.Upsert(mkQuote(t, "a", "ETH", "1", "2", t0))

	removed := s.SweepStale(t0.Add(61 * time.Second))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []domain.Symbol{"BTC"}, s.Symbols())

	// The symbol shard can be recreated after being swept away.
	assert.True(t, s.Upsert(mkQuote(t, "a", "ETH", "1", "2", t0.Add(70*time.Second))))
	assert.Equal(t, 2, s.Len())
}

func TestRetentionNeverShorterThanStaleness(t *testing.T) {
	s := NewStore(90*time.Second, 10*time.Second)
	s.Upsert(mkQuote(t, "a", "BTC", "1", "2", t0))
	assert.Equal(t, 0, s.SweepStale(t0.Add(80*time.Second)))
}

func TestConcurrentWritersKeepNewest(t *testing.T) {
	s := NewStore(time.Hour, time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				venue := fmt.Sprintf("v%d", i%4)
				at := t0.Add(time.Duration(i*8+w) * time.Millisecond)
				q, _ := domain.NewQuote(domain.VenueID(venue), "BTC", exact.One, exact.One, exact.One, exact.One, at)
				s.Upsert(q)
			}
		}(w)
	}
	wg.Wait()

	for v := 0; v < 4; v++ {
		q, ok := s.Get(domain.VenueID(fmt.Sprintf("v%d", v)), "BTC")
		require.True(t, ok)
		// Highest i with i%4 == v is 196+v, written by worker 7.
		want := t0.Add(time.Duration((196+v)*8+7) * time.Millisecond)
		assert.True(t, q.ObservedAt.Equal(want), "venue v%d: got %s want %s", v, q.ObservedAt, want)
	}
}
