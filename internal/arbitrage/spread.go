package arbitrage

import (
	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

var two = exact.FromInt(2)

// SpreadConfig bounds which spreads count as opportunities.
type SpreadConfig struct {
	// MinProfitPercent is the minimum net profit, in percent, after fees and
	// slippage.
	MinProfitPercent exact.Decimal
	// MaxTradeSize caps the recommended size. Zero means no cap.
	MaxTradeSize exact.Decimal
}

// SpreadResult is the priced outcome of buying on one venue and selling on
// another.
type SpreadResult struct {
	Symbol             domain.Symbol
	BuyVenue           domain.VenueID
	SellVenue          domain.VenueID
	BuyPrice           exact.Decimal
	SellPrice          exact.Decimal
	GrossSpreadPercent exact.Decimal
	FeesPercent        exact.Decimal
	SlippagePercent    exact.Decimal
	NetProfitPercent   exact.Decimal
	TradeSize          exact.Decimal
	EstimatedProfit    exact.Decimal
	// DepthUsagePercent is how much of the thinner top-of-book level the
	// trade consumes, the price impact proxy used by the risk scorer.
	DepthUsagePercent exact.Decimal
}

// Evaluate prices buying at buy.Ask and selling at sell.Bid. It returns false
// when there is no spread, when net profit is below cfg.MinProfitPercent, or
// when the tradable size is zero or below either venue's minimum order size.
// Fees and slippage of the two legs are summed, not compounded.
func Evaluate(buy, sell domain.Quote, buyVenue, sellVenue domain.VenueProfile, cfg SpreadConfig) (SpreadResult, bool) {
	if buy.Symbol != sell.Symbol || buy.Venue == sell.Venue {
		return SpreadResult{}, false
	}
	if !buy.Ask.IsPositive() || !sell.Bid.IsPositive() {
		return SpreadResult{}, false
	}
	if sell.Bid.LessThanOrEqual(buy.Ask) {
		return SpreadResult{}, false
	}

	diff := sell.Bid.Sub(buy.Ask)
	mid, err := sell.Bid.Add(buy.Ask).Div(two)
	if err != nil {
		return SpreadResult{}, false
	}
	ratio, err := diff.Div(mid)
	if err != nil {
		return SpreadResult{}, false
	}
	gross := ratio.Mul(exact.Hundred)

	fees := buyVenue.TakerFeePercent.Add(sellVenue.TakerFeePercent)
	slippage := buyVenue.MaxSlippagePercent.Add(sellVenue.MaxSlippagePercent)
	net := gross.Sub(fees).Sub(slippage)
	if net.LessThan(cfg.MinProfitPercent) {
		return SpreadResult{}, false
	}

	depth := exact.Min(buy.AskSize, sell.BidSize)
	size := depth
	if cfg.MaxTradeSize.IsPositive() {
		size = exact.Min(size, cfg.MaxTradeSize)
	}
	if !size.IsPositive() {
		return SpreadResult{}, false
	}
	if size.LessThan(buyVenue.MinOrderSize) || size.LessThan(sellVenue.MinOrderSize) {
		return SpreadResult{}, false
	}

	profit, err := size.Mul(net).Div(exact.Hundred)
	if err != nil {
		return SpreadResult{}, false
	}
	usage, err := size.Div(depth)
	if err != nil {
		return SpreadResult{}, false
	}

	return SpreadResult{
		Symbol:             buy.Symbol,
		BuyVenue:           buy.Venue,
		SellVenue:          sell.Venue,
		BuyPrice:           buy.Ask,
		SellPrice:          sell.Bid,
		GrossSpreadPercent: gross,
		FeesPercent:        fees,
		SlippagePercent:    slippage,
		NetProfitPercent:   net,
		TradeSize:          size,
		EstimatedProfit:    profit,
		DepthUsagePercent:  usage.Mul(exact.Hundred),
	}, true
}
