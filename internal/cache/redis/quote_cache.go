package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at "quote:{symbol}:{venue}" with decimal string fields and a
// Unix-nanosecond "ts"; the set "quote:venues:{symbol}" indexes the venues
// seen for a symbol. Hashes expire after ttl so dead feeds age out.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(symbol domain.Symbol, venue domain.VenueID) string {
	return "quote:" + string(symbol) + ":" + string(venue)
}

func venuesKey(symbol domain.Symbol) string {
	return "quote:venues:" + string(symbol)
}

// SetQuote mirrors q. Writes are pipelined in one round trip.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.Symbol, q.Venue)
	fields := map[string]interface{}{
		"bid":      q.Bid.String(),
		"ask":      q.Ask.String(),
		"bid_size": q.BidSize.String(),
		"ask_size": q.AskSize.String(),
		"ts":       strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, venuesKey(q.Symbol), string(q.Venue))
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote returns domain.ErrNotFound when no quote is cached.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) (domain.Quote, error) {
	key := quoteKey(symbol, venue)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	return parseQuote(venue, symbol, vals)
}

// GetQuotes returns every cached quote of symbol ordered by venue. Venues
// whose hash has expired are pruned from the index.
func (qc *QuoteCache) GetQuotes(ctx context.Context, symbol domain.Symbol) ([]domain.Quote, error) {
	venues, err := qc.rdb.SMembers(ctx, venuesKey(symbol)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list venues %s: %w", symbol, err)
	}
	if len(venues) == 0 {
		return nil, nil
	}
	sort.Strings(venues)

	pipe := qc.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(venues))
	for i, v := range venues {
		cmds[i] = pipe.HGetAll(ctx, quoteKey(symbol, domain.VenueID(v)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes %s: %w", symbol, err)
	}

	out := make([]domain.Quote, 0, len(venues))
	var gone []interface{}
	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			gone = append(gone, venues[i])
			continue
		}
		q, err := parseQuote(domain.VenueID(venues[i]), symbol, vals)
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	if len(gone) > 0 {
		_ = qc.rdb.SRem(ctx, venuesKey(symbol), gone...).Err()
	}
	return out, nil
}

// Symbols lists every symbol with a venue index, sorted.
func (qc *QuoteCache) Symbols(ctx context.Context) ([]domain.Symbol, error) {
	const prefix = "quote:venues:"
	var out []domain.Symbol
	iter := qc.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, domain.Symbol(strings.TrimPrefix(iter.Val(), prefix)))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan quote symbols: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func parseQuote(venue domain.VenueID, symbol domain.Symbol, vals map[string]string) (domain.Quote, error) {
	var nums [4]exact.Decimal
	for i, f := range []string{"bid", "ask", "bid_size", "ask_size"} {
		v, err := exact.Parse(vals[f])
		if err != nil {
			return domain.Quote{}, fmt.Errorf("redis: parse %s of %s/%s: %w", f, venue, symbol, err)
		}
		nums[i] = v
	}
	ns, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts of %s/%s: %w", venue, symbol, err)
	}
	return domain.NewQuote(venue, symbol, nums[0], nums[1], nums[2], nums[3], time.Unix(0, ns).UTC())
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
