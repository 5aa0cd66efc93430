package domain

import (
	"context"
	"time"
)

// Bus channel and stream names shared by publishers and consumers.
const (
	ChannelQuotes           = "quotes"
	ChannelOpportunities    = "opportunities"
	StreamOpportunityEvents = "opportunity_events"
)

// QuoteCache mirrors the latest quotes for other processes.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, venue VenueID, symbol Symbol) (Quote, error)
	GetQuotes(ctx context.Context, symbol Symbol) ([]Quote, error)
	Symbols(ctx context.Context) ([]Symbol, error)
}

// Lease is a held distributed lock.
type Lease interface {
	// Refresh extends the lease by its original TTL. It returns ErrLockHeld
	// once the lease has expired and been taken by someone else.
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// RateLimiter throttles callers sharing a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) (string, error)
	StreamRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]StreamMessage, error)
}
