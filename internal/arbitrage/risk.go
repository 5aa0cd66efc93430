package arbitrage

import (
	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

var (
	latencyRiskCap    = exact.FromInt(20)
	thinnessRiskCap   = exact.FromInt(30)
	thinnessScale     = exact.FromInt(20)
	liquidityScale    = exact.FromInt(10)
	liquidityRiskCap  = exact.FromInt(10)
	confidenceBase    = exact.FromInt(50)
	profitBonusCap    = exact.FromInt(30)
	profitBonusScale  = exact.FromInt(10)
	unknownVenueMalus = exact.FromInt(15)
)

// RiskConfig holds the admissibility thresholds of the scorer.
type RiskConfig struct {
	MaxRiskScore  exact.Decimal
	MinConfidence exact.Decimal
	// MinProfitPercent anchors the spread-thinness term: a net profit equal
	// to it scores the full thinness weight.
	MinProfitPercent exact.Decimal
	// LatencyMsPerPoint converts combined venue latency into risk points.
	LatencyMsPerPoint int64
}

// RiskAssessment is the scored outcome of a spread. Score is 0 to 100, higher
// is riskier; Confidence is 0 to 100.
type RiskAssessment struct {
	Score          exact.Decimal
	Confidence     exact.Decimal
	LatencyRisk    exact.Decimal
	ThinnessRisk   exact.Decimal
	ReputationRisk exact.Decimal
	SymbolRisk     exact.Decimal
	LiquidityRisk  exact.Decimal
	Admissible     bool
	// Rejection names the failed threshold when Admissible is false.
	Rejection string
}

// RiskScorer is a pure scoring function over venue profiles and a spread.
type RiskScorer struct {
	cfg RiskConfig
}

func NewRiskScorer(cfg RiskConfig) RiskScorer {
	if cfg.LatencyMsPerPoint <= 0 {
		cfg.LatencyMsPerPoint = 25
	}
	return RiskScorer{cfg: cfg}
}

// Score combines latency, spread thinness, venue reputation, symbol risk and
// book-depth usage into a clamped score, and derives a confidence from net
// profit, latency and whether both venues are configured.
func (s RiskScorer) Score(buy, sell domain.VenueProfile, spread SpreadResult, symbolRiskUnits uint8) RiskAssessment {
	latencyMs := int64(buy.TypicalLatencyMs) + int64(sell.TypicalLatencyMs)
	net := spread.NetProfitPercent

	a := RiskAssessment{
		LatencyRisk:    exact.Min(exact.FromInt(latencyMs).MustDiv(exact.FromInt(s.cfg.LatencyMsPerPoint)), latencyRiskCap),
		ThinnessRisk:   s.thinness(net),
		ReputationRisk: exact.FromInt(int64(buy.ReputationRiskUnits) + int64(sell.ReputationRiskUnits)),
		SymbolRisk:     exact.FromInt(int64(symbolRiskUnits)),
		LiquidityRisk:  spread.DepthUsagePercent.MustDiv(liquidityScale).Clamp(exact.Zero, liquidityRiskCap),
	}
	a.Score = a.LatencyRisk.
		Add(a.ThinnessRisk).
		Add(a.ReputationRisk).
		Add(a.SymbolRisk).
		Add(a.LiquidityRisk).
		Clamp(exact.Zero, exact.Hundred)

	conf := confidenceBase.
		Add(exact.Min(net.Mul(profitBonusScale), profitBonusCap)).
		Add(latencyBonus(latencyMs))
	for _, v := range []domain.VenueProfile{buy, sell} {
		if !v.Known {
			conf = conf.Sub(unknownVenueMalus)
		}
	}
	a.Confidence = conf.Clamp(exact.Zero, exact.Hundred)

	switch {
	case a.Score.GreaterThan(s.cfg.MaxRiskScore):
		a.Rejection = "risk_score"
	case a.Confidence.LessThan(s.cfg.MinConfidence):
		a.Rejection = "confidence"
	default:
		a.Admissible = true
	}
	return a
}

func (s RiskScorer) thinness(net exact.Decimal) exact.Decimal {
	if !net.IsPositive() {
		return thinnessRiskCap
	}
	r := s.cfg.MinProfitPercent.MustDiv(net).Mul(thinnessScale)
	return r.Clamp(exact.Zero, thinnessRiskCap)
}

func latencyBonus(ms int64) exact.Decimal {
	switch {
	case ms <= 100:
		return exact.FromInt(20)
	case ms <= 250:
		return exact.FromInt(10)
	case ms <= 500:
		return exact.FromInt(5)
	case ms > 1000:
		return exact.FromInt(-10)
	default:
		return exact.Zero
	}
}
