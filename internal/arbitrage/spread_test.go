package arbitrage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

var t0 = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func d(s string) exact.Decimal { return exact.MustParse(s) }

func q(t *testing.T, venue, symbol, bid, ask, bidSize, askSize string) domain.Quote {
	t.Helper()
	out, err := domain.NewQuote(domain.VenueID(venue), domain.Symbol(symbol), d(bid), d(ask), d(bidSize), d(askSize), t0)
	require.NoError(t, err)
	return out
}

func venue(id, fee, slip string) domain.VenueProfile {
	return domain.VenueProfile{
		ID:                  domain.VenueID(id),
		TakerFeePercent:     d(fee),
		MaxSlippagePercent:  d(slip),
		TypicalLatencyMs:    50,
		ReputationRiskUnits: 2,
		Known:               true,
	}
}

func TestEvaluateReferenceExample(t *testing.T) {
	buy := q(t, "a", "BTC", "99", "100", "5", "5")
	sell := q(t, "b", "BTC", "102", "103", "5", "5")
	cfg := SpreadConfig{MinProfitPercent: d("0.3")}

	res, ok := Evaluate(buy, sell, venue("a", "0.02", "0.1"), venue("b", "0.1", "0.05"), cfg)
	require.True(t, ok)
	assert.Equal(t, "1.980", res.GrossSpreadPercent.StringFixed(3))
	assert.Equal(t, "0.27", res.FeesPercent.Add(res.SlippagePercent).String())
	assert.Equal(t, "1.710", res.NetProfitPercent.StringFixed(3))
	assert.True(t, res.NetProfitPercent.Equal(res.GrossSpreadPercent.Sub(d("0.27"))))
	assert.Equal(t, "5", res.TradeSize.String())
	assert.True(t, res.EstimatedProfit.Equal(d("5").Mul(res.NetProfitPercent).MustDiv(exact.Hundred)))
	assert.Equal(t, "100", res.DepthUsagePercent.String())

	_, ok = Evaluate(buy, sell, venue("a", "0.02", "0.1"), venue("b", "0.1", "0.05"), SpreadConfig{MinProfitPercent: d("1.711")})
	assert.False(t, ok)
}

func TestEvaluateNoSpread(t *testing.T) {
	cfg := SpreadConfig{}
	a, b := venue("a", "0", "0"), venue("b", "0", "0")

	for _, bid := range []string{"100", "99.99", "50"} {
		_, ok := Evaluate(q(t, "a", "BTC", "99", "100", "1", "1"), q(t, "b", "BTC", bid, "101", "1", "1"), a, b, cfg)
		assert.False(t, ok, "sell bid %s", bid)
	}
}

func TestEvaluateRejectsMissingData(t *testing.T) {
	cfg := SpreadConfig{MinProfitPercent: d("0.3")}
	a, b := venue("a", "0", "0"), venue("b", "0", "0")

	// Missing price.
	_, ok := Evaluate(q(t, "a", "BTC", "0", "0", "1", "1"), q(t, "b", "BTC", "102", "103", "1", "1"), a, b, cfg)
	assert.False(t, ok)

	// Missing size counts as zero size.
	_, ok = Evaluate(q(t, "a", "BTC", "99", "100", "1", "0"), q(t, "b", "BTC", "102", "103", "1", "1"), a, b, cfg)
	assert.False(t, ok)

	// Same venue on both legs.
	_, ok = Evaluate(q(t, "a", "BTC", "99", "100", "1", "1"), q(t, "a", "BTC", "102", "103", "1", "1"), a, a, cfg)
	assert.False(t, ok)

	// Different symbols.
	_, ok = Evaluate(q(t, "a", "BTC", "99", "100", "1", "1"), q(t, "b", "ETH", "102", "103", "1", "1"), a, b, cfg)
	assert.False(t, ok)
}

func TestEvaluateSizeBounds(t *testing.T) {
	buy := q(t, "a", "BTC", "99", "100", "9", "4")
	sell := q(t, "b", "BTC", "102", "103", "2.5", "9")
	a, b := venue("a", "0", "0"), venue("b", "0", "0")

	res, ok := Evaluate(buy, sell, a, b, SpreadConfig{})
	require.True(t, ok)
	assert.Equal(t, "2.5", res.TradeSize.String())

	res, ok = Evaluate(buy, sell, a, b, SpreadConfig{MaxTradeSize: d("1")})
	require.True(t, ok)
	assert.Equal(t, "1", res.TradeSize.String())
	assert.Equal(t, "40", res.DepthUsagePercent.String())

	b.MinOrderSize = d("3")
	_, ok = Evaluate(buy, sell, a, b, SpreadConfig{})
	assert.False(t, ok)
}

func TestEvaluateFeesAreAdditive(t *testing.T) {
	buy := q(t, "a", "BTC", "99", "100", "1", "1")
	sell := q(t, "b", "BTC", "110", "111", "1", "1")

	res, ok := Evaluate(buy, sell, venue("a", "1", "0.5"), venue("b", "2", "0.25"), SpreadConfig{})
	require.True(t, ok)
	assert.True(t, res.NetProfitPercent.Equal(res.GrossSpreadPercent.Sub(d("3.75"))))
}
