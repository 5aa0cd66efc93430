package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

type recordingSender struct {
	name  string
	err   error
	calls []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.calls = append(r.calls, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifier_Filter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{" opportunity_detected "}, nil)

	require.NoError(t, n.Notify(context.Background(), "opportunity_detected", "a", ""))
	require.NoError(t, n.Notify(context.Background(), "opportunity_expired", "b", ""))
	assert.Equal(t, []string{"a"}, s.calls)

	all := NewNotifier([]Sender{s}, nil, nil)
	require.NoError(t, all.Notify(context.Background(), "anything", "c", ""))
	assert.Equal(t, []string{"a", "c"}, s.calls)
}

func TestNotifier_PartialFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.Notify(context.Background(), "x", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.calls, 1)

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
	assert.NoError(t, nilNotifier.Notify(context.Background(), "x", "t", "m"))
}

func TestSenders(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok", "42")
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])

	dc := NewDiscordSender(srv.URL + "/hook")
	require.NoError(t, dc.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "**Title**\nbody", got["content"])

	err := NewDiscordSender(srv.URL+"/fail").Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestFormatOpportunity(t *testing.T) {
	o := domain.Opportunity{
		ID: "opp-1", Symbol: "ETH-USDT", BuyVenue: "binance", SellVenue: "kraken",
		BuyPrice: exact.MustParse("1800"), SellPrice: exact.MustParse("1825"),
		NetProfitPercent:   exact.MustParse("1.0889"),
		GrossSpreadPercent: exact.MustParse("1.3889"),
		EstimatedProfit:    exact.MustParse("0.0109"),
		RecommendedSize:    exact.MustParse("1"),
	}
	title, msg := FormatOpportunity(domain.NewDetectedEvent(o, time.Now()))
	assert.Equal(t, "Arbitrage ETH-USDT binance→kraken", title)
	assert.Contains(t, msg, "net 1.0889% (gross 1.3889%)")
	assert.Contains(t, msg, "id opp-1")

	title, _ = FormatOpportunity(domain.NewExpiredEvent(o, domain.CloseInvalidated, time.Now()))
	assert.Equal(t, "Closed ETH-USDT binance→kraken (invalidated)", title)
}
