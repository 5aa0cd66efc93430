package arbitrage

import (
	"log/slog"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/eventq"
	"github.com/October-1030/AAOKX-sub001/internal/metrics"
	"github.com/October-1030/AAOKX-sub001/internal/quote"
)

// ScanStats summarizes one scanner tick.
type ScanStats struct {
	Symbols     int
	Pairs       int
	Candidates  int
	Detected    int
	Refreshed   int
	Invalidated int
	Expired     int
	QuotesSwept int
}

// Scanner evaluates every ordered venue pair of every symbol and feeds the
// registry and the event queue.
type Scanner struct {
	quotes     *quote.Store
	venues     domain.VenueBook
	symbolRisk map[domain.Symbol]uint8
	spread     SpreadConfig
	scorer     RiskScorer
	registry   *Registry
	queue      *eventq.Queue
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Evaluate prices and scores buying on buy and selling on sell. It returns
// the candidate opportunity and its assessment; ok is false when the pair
// has no qualifying spread. A candidate that fails the risk thresholds is
// returned with ok true and Admissible false.
func (s *Scanner) Evaluate(buy, sell domain.Quote) (domain.Opportunity, RiskAssessment, bool) {
	buyVenue, sellVenue := s.venues.Lookup(buy.Venue), s.venues.Lookup(sell.Venue)
	sr, ok := Evaluate(buy, sell, buyVenue, sellVenue, s.spread)
	if !ok {
		return domain.Opportunity{}, RiskAssessment{}, false
	}
	ra := s.scorer.Score(buyVenue, sellVenue, sr, s.symbolRisk[buy.Symbol])
	return candidateFrom(sr, ra), ra, true
}

func candidateFrom(sr SpreadResult, ra RiskAssessment) domain.Opportunity {
	return domain.Opportunity{
		Key:                domain.NewOpportunityKey(sr.Symbol, sr.BuyVenue, sr.SellVenue),
		Symbol:             sr.Symbol,
		BuyVenue:           sr.BuyVenue,
		SellVenue:          sr.SellVenue,
		BuyPrice:           sr.BuyPrice,
		SellPrice:          sr.SellPrice,
		GrossSpreadPercent: sr.GrossSpreadPercent,
		FeesPercent:        sr.FeesPercent,
		SlippagePercent:    sr.SlippagePercent,
		NetProfitPercent:   sr.NetProfitPercent,
		EstimatedProfit:    sr.EstimatedProfit,
		RecommendedSize:    sr.TradeSize,
		DepthUsagePercent:  sr.DepthUsagePercent,
		RiskScore:          ra.Score,
		Confidence:         ra.Confidence,
	}
}

// Recompute implements Revalidator against the fresh quotes of the snapshot's
// venues.
func (s *Scanner) Recompute(snapshot domain.Opportunity, now time.Time) (*domain.Opportunity, domain.ValidationReason) {
	buy, ok := s.quotes.Fresh(snapshot.BuyVenue, snapshot.Symbol, now)
	if !ok {
		return nil, domain.ValidationQuotesMissing
	}
	sell, ok := s.quotes.Fresh(snapshot.SellVenue, snapshot.Symbol, now)
	if !ok {
		return nil, domain.ValidationQuotesMissing
	}

	cand, ra, ok := s.Evaluate(buy, sell)
	if !ok {
		return nil, domain.ValidationNoSpread
	}
	cand.ID = snapshot.ID
	cand.DetectedAt = snapshot.DetectedAt
	cand.UpdatedAt = now
	cand.ExpiresAt = snapshot.ExpiresAt
	cand.Refreshes = snapshot.Refreshes
	if !ra.Admissible {
		return &cand, domain.ValidationRejectedRisk
	}
	return &cand, domain.ValidationOK
}

// Scan runs one tick at now. Rejected pairs are skipped; a tick never fails.
func (s *Scanner) Scan(now time.Time) ScanStats {
	var st ScanStats
	seen := make(map[domain.OpportunityKey]bool)

	for _, sym := range s.quotes.Symbols() {
		quotes := s.quotes.QuotesFor(sym, now)
		if len(quotes) < 2 {
			continue
		}
		st.Symbols++
		for i := range quotes {
			for j := range quotes {
				if i == j {
					continue
				}
				st.Pairs++
				cand, ra, ok := s.Evaluate(quotes[i], quotes[j])
				if !ok {
					continue
				}
				st.Candidates++
				if !ra.Admissible {
					s.metrics.CandidatesRejected.WithLabelValues(ra.Rejection).Inc()
					continue
				}
				if seen[cand.Key] {
					continue
				}
				seen[cand.Key] = true
				s.admit(cand, now, &st)
			}
		}
	}

	st.Invalidated = s.invalidateVanished(now)
	for _, opp := range s.registry.SweepExpired(now) {
		s.close(opp, domain.CloseExpired, now)
		st.Expired++
	}
	if n := s.quotes.SweepStale(now); n > 0 {
		st.QuotesSwept = n
		s.metrics.QuotesSwept.Add(float64(n))
	}

	s.publishGauges(now)
	return st
}

func (s *Scanner) admit(cand domain.Opportunity, now time.Time, st *ScanStats) {
	res := s.registry.AdmitOrRefresh(cand, now)
	if res.Expired != nil {
		s.close(*res.Expired, domain.CloseExpired, now)
		st.Expired++
	}
	if !res.First {
		st.Refreshed++
		return
	}
	st.Detected++
	s.metrics.OpportunitiesDetected.WithLabelValues(string(cand.Symbol)).Inc()
	s.queue.Enqueue(domain.NewDetectedEvent(res.Opportunity, now))
	s.logger.Info("opportunity detected",
		slog.String("id", res.Opportunity.ID),
		slog.String("key", cand.Key.String()),
		slog.String("net_profit_percent", cand.NetProfitPercent.StringFixed(4)),
		slog.String("risk_score", cand.RiskScore.StringFixed(2)),
		slog.String("confidence", cand.Confidence.StringFixed(2)),
	)
}

// invalidateVanished drops live entries whose buy or sell quote is no
// longer fresh.
func (s *Scanner) invalidateVanished(now time.Time) int {
	n := 0
	for _, opp := range s.registry.ListLive(now) {
		_, buyOK := s.quotes.Fresh(opp.BuyVenue, opp.Symbol, now)
		_, sellOK := s.quotes.Fresh(opp.SellVenue, opp.Symbol, now)
		if buyOK && sellOK {
			continue
		}
		if removed, ok := s.registry.Invalidate(opp.Key); ok {
			s.close(removed, domain.CloseInvalidated, now)
			n++
		}
	}
	return n
}

func (s *Scanner) close(opp domain.Opportunity, reason domain.CloseReason, now time.Time) {
	s.metrics.OpportunitiesClosed.WithLabelValues(string(reason)).Inc()
	s.queue.Enqueue(domain.NewExpiredEvent(opp, reason, now))
	s.logger.Debug("opportunity closed",
		slog.String("id", opp.ID),
		slog.String("key", opp.Key.String()),
		slog.String("reason", string(reason)),
	)
}

func (s *Scanner) publishGauges(now time.Time) {
	live := s.registry.ListLive(now)
	s.metrics.OpportunitiesLive.Set(float64(len(live)))

	s.metrics.BestNetProfit.Reset()
	best := make(map[domain.Symbol]float64)
	for _, opp := range live {
		v := opp.NetProfitPercent.Float64()
		if cur, ok := best[opp.Symbol]; !ok || v > cur {
			best[opp.Symbol] = v
		}
	}
	for sym, v := range best {
		s.metrics.BestNetProfit.WithLabelValues(string(sym)).Set(v)
	}
}
