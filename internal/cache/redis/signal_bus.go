package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

// streamMaxLen caps each stream so it never grows without bound.
const streamMaxLen = 10000

// SignalBus implements domain.SignalBus using Redis Pub/Sub for fan-out and
// Redis Streams for the durable event trail.
type SignalBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client, logger *slog.Logger) *SignalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalBus{rdb: c.Underlying(), logger: logger.With(slog.String("component", "signal_bus"))}
}

// Publish sends payload to all subscribers of channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it on channel.
func (sb *SignalBus) PublishJSON(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal for %s: %w", channel, err)
	}
	return sb.Publish(ctx, channel, data)
}

// Subscribe returns a channel of payloads published on channel. Patterns
// containing '*' use PSUBSCRIBE. The returned channel closes when ctx is
// cancelled or the subscription drops.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.Contains(channel, "*") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation before handing out the channel,
	// otherwise early publishes are lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// StreamAppend appends payload to stream and returns the generated entry ID.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) (string, error) {
	id, err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return id, nil
}

// StreamRead reads up to count entries after lastID, blocking for block when
// the stream has nothing new. Use "0" to read from the beginning and "$" for
// new entries only. A timeout yields an empty slice.
func (sb *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]domain.StreamMessage, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: xread %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			raw, ok := m.Values["payload"]
			if !ok {
				sb.logger.Warn("stream entry without payload", slog.String("stream", stream), slog.String("id", m.ID))
				continue
			}
			var payload []byte
			switch v := raw.(type) {
			case string:
				payload = []byte(v)
			case []byte:
				payload = v
			default:
				payload = []byte(fmt.Sprint(v))
			}
			out = append(out, domain.StreamMessage{ID: m.ID, Payload: payload})
		}
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
