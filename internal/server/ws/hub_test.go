package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

type staticBook []domain.Opportunity

func (b staticBook) ListLive() []domain.Opportunity { return b }

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func startHub(t *testing.T, book Snapshotter) (*Hub, chan domain.Event, string) {
	t.Helper()
	hub := NewHub(book, slog.New(slog.NewTextHandler(io.Discard, nil)))
	events := make(chan domain.Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx, events)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, events, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func opp(id string) domain.Opportunity {
	return domain.Opportunity{ID: id, Symbol: "BTC", BuyVenue: "A", SellVenue: "B", NetProfitPercent: exact.MustParse("1.0889")}
}

func TestSnapshotOnConnect(t *testing.T) {
	_, _, url := startHub(t, staticBook{opp("opp-1")})
	conn := dial(t, url)

	msg := readJSON(t, conn)
	assert.Equal(t, "snapshot", msg["event"])
	opps := msg["opportunities"].([]any)
	require.Len(t, opps, 1)
	assert.Equal(t, "opp-1", opps[0].(map[string]any)["id"])
}

func TestRelaysDefaultEventTypes(t *testing.T) {
	_, events, url := startHub(t, nil)
	conn := dial(t, url)
	snap := readJSON(t, conn)
	assert.Empty(t, snap["opportunities"])

	q, err := domain.NewQuote("A", "BTC", exact.MustParse("100"), exact.MustParse("100.1"), exact.One, exact.One, t0)
	require.NoError(t, err)
	o := opp("opp-1")

	// Quote updates are not in the default set, so the detection arrives first.
	events <- domain.NewQuoteEvent(q, t0)
	events <- domain.Event{Type: domain.EventOpportunityDetected, Opportunity: &o, At: t0}
	events <- domain.Event{Type: domain.EventOpportunityExpired, Opportunity: &o, Reason: domain.CloseExpired, At: t0}

	msg := readJSON(t, conn)
	assert.Equal(t, string(domain.EventOpportunityDetected), msg["event"])
	assert.Equal(t, "opp-1", msg["opportunity"].(map[string]any)["id"])

	msg = readJSON(t, conn)
	assert.Equal(t, string(domain.EventOpportunityExpired), msg["event"])
	assert.Equal(t, string(domain.CloseExpired), msg["reason"])
}

func TestClientSubscriptionChanges(t *testing.T) {
	hub, events, url := startHub(t, nil)
	conn := dial(t, url)
	readJSON(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action": "subscribe",
		"events": []string{string(domain.EventQuoteUpdated)},
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"action": "unsubscribe",
		"events": []string{string(domain.EventOpportunityDetected)},
	}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return c.isSubscribed(domain.EventQuoteUpdated) && !c.isSubscribed(domain.EventOpportunityDetected)
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	q, err := domain.NewQuote("A", "BTC", exact.MustParse("100"), exact.MustParse("100.1"), exact.One, exact.One, t0)
	require.NoError(t, err)
	o := opp("opp-1")
	events <- domain.Event{Type: domain.EventOpportunityDetected, Opportunity: &o, At: t0}
	events <- domain.NewQuoteEvent(q, t0)

	msg := readJSON(t, conn)
	assert.Equal(t, string(domain.EventQuoteUpdated), msg["event"])
	assert.Equal(t, "A", msg["quote"].(map[string]any)["venue"])
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx, make(chan domain.Event)) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	readJSON(t, conn)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
}
