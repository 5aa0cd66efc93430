// Package quote holds the latest quote per (venue, symbol) and applies the
// staleness and retention windows.
package quote

import (
	"sort"
	"sync"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

const (
	DefaultStalenessWindow = 30 * time.Second
	DefaultRetentionWindow = 60 * time.Second
)

// shard holds every venue's quote for one symbol. Writers for a symbol
// serialize on the shard lock, which keeps replacement monotonic per key.
type shard struct {
	mu     sync.RWMutex
	quotes map[domain.VenueID]domain.Quote
	// dead is set once the sweeper has unlinked the shard.
	dead bool
}

// Store is a concurrency-safe latest-quote cache.
type Store struct {
	staleness time.Duration
	retention time.Duration

	mu     sync.RWMutex
	shards map[domain.Symbol]*shard
}

// NewStore creates a Store. Non-positive windows fall back to the defaults;
// a retention window shorter than the staleness window is raised to it.
func NewStore(staleness, retention time.Duration) *Store {
	if staleness <= 0 {
		staleness = DefaultStalenessWindow
	}
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}
	if retention < staleness {
		retention = staleness
	}
	return &Store{
		staleness: staleness,
		retention: retention,
		shards:    make(map[domain.Symbol]*shard),
	}
}

// StalenessWindow returns the configured staleness window.
func (s *Store) StalenessWindow() time.Duration { return s.staleness }

func (s *Store) shardFor(symbol domain.Symbol, create bool) *shard {
	s.mu.RLock()
	sh := s.shards[symbol]
	s.mu.RUnlock()
	if sh != nil || !create {
		return sh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh = s.shards[symbol]; sh == nil {
		sh = &shard{quotes: make(map[domain.VenueID]domain.Quote)}
		s.shards[symbol] = sh
	}
	return sh
}

// Upsert stores q if it is strictly newer than the stored quote for its
// (venue, symbol). It reports whether q was stored. A quote with the same
// timestamp as the stored one is dropped.
func (s *Store) Upsert(q domain.Quote) bool {
	for {
		sh := s.shardFor(q.Symbol, true)
		sh.mu.Lock()
		if sh.dead {
			sh.mu.Unlock()
			continue
		}
		cur, ok := sh.quotes[q.Venue]
		if ok && !q.ObservedAt.After(cur.ObservedAt) {
			sh.mu.Unlock()
			return false
		}
		sh.quotes[q.Venue] = q
		sh.mu.Unlock()
		return true
	}
}

// Get returns the stored quote regardless of age.
func (s *Store) Get(venue domain.VenueID, symbol domain.Symbol) (domain.Quote, bool) {
	sh := s.shardFor(symbol, false)
	if sh == nil {
		return domain.Quote{}, false
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	q, ok := sh.quotes[venue]
	return q, ok
}

// Fresh returns the stored quote only if it is within the staleness window.
func (s *Store) Fresh(venue domain.VenueID, symbol domain.Symbol, now time.Time) (domain.Quote, bool) {
	q, ok := s.Get(venue, symbol)
	if !ok || !s.isFresh(q, now) {
		return domain.Quote{}, false
	}
	return q, true
}

// QuotesFor returns the fresh quotes for symbol ordered by venue ID.
func (s *Store) QuotesFor(symbol domain.Symbol, now time.Time) []domain.Quote {
	sh := s.shardFor(symbol, false)
	if sh == nil {
		return nil
	}

	sh.mu.RLock()
	out := make([]domain.Quote, 0, len(sh.quotes))
	for _, q := range sh.quotes {
		if s.isFresh(q, now) {
			out = append(out, q)
		}
	}
	sh.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Venue < out[j].Venue })
	return out
}

// Symbols returns every symbol with at least one stored quote, sorted.
func (s *Store) Symbols() []domain.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Symbol, 0, len(s.shards))
	for sym, sh := range s.shards {
		sh.mu.RLock()
		n := len(sh.quotes)
		sh.mu.RUnlock()
		if n > 0 {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of stored quotes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.quotes)
		sh.mu.RUnlock()
	}
	return n
}

// SweepStale evicts quotes older than the retention window and returns how
// many were removed.
func (s *Store) SweepStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sym, sh := range s.shards {
		sh.mu.Lock()
		for venue, q := range sh.quotes {
			if q.Age(now) > s.retention {
				delete(sh.quotes, venue)
				removed++
			}
		}
		if len(sh.quotes) == 0 {
			sh.dead = true
			delete(s.shards, sym)
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *Store) isFresh(q domain.Quote, now time.Time) bool {
	return q.Age(now) <= s.staleness
}
