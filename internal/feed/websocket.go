package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// Backoff bounds the reconnect delay, which doubles per failed attempt.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) next(cur time.Duration) time.Duration {
	if cur <= 0 {
		if b.Initial > 0 {
			return b.Initial
		}
		return time.Second
	}
	cur *= 2
	if b.Max > 0 && cur > b.Max {
		cur = b.Max
	}
	return cur
}

// WebsocketFeed dials a websocket endpoint that streams quote JSON and
// reconnects with exponential backoff until its context ends.
type WebsocketFeed struct {
	url     string
	handle  Handler
	backoff Backoff
	dialer  *websocket.Dialer
	now     func() time.Time
	logger  *slog.Logger
}

// NewWebsocketFeed creates a feed for url.
func NewWebsocketFeed(url string, handle Handler, backoff Backoff, logger *slog.Logger) *WebsocketFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketFeed{
		url:     url,
		handle:  handle,
		backoff: backoff,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		now:     time.Now,
		logger:  logger.With(slog.String("component", "ws_feed"), slog.String("url", url)),
	}
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (f *WebsocketFeed) Run(ctx context.Context) error {
	var delay time.Duration
	for {
		connected, err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = 0
		}
		delay = f.backoff.next(delay)
		f.logger.Warn("quote feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", delay),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// runConnection serves one connection. connected reports whether the dial
// succeeded, which resets the backoff.
func (f *WebsocketFeed) runConnection(ctx context.Context) (connected bool, err error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("feed: dial: %w", err)
	}
	defer conn.Close()
	f.logger.Info("quote feed connected")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Unblock ReadMessage on shutdown and keep the peer pinged.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, errors.New("feed: closed by peer")
			}
			return true, fmt.Errorf("feed: read: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		f.dispatch(ctx, data)
	}
}

func (f *WebsocketFeed) dispatch(ctx context.Context, data []byte) {
	ups, err := Decode(data, f.now())
	if err != nil {
		f.logger.Debug("undecodable quote message", slog.String("error", err.Error()), slog.Int("len", len(data)))
		return
	}
	for _, u := range ups {
		if err := f.handle(ctx, u); err != nil {
			f.logger.Debug("quote rejected",
				slog.String("venue", string(u.Venue)),
				slog.String("symbol", string(u.Symbol)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
