// Package arbitrage detects, scores and tracks cross-venue arbitrage
// opportunities. The Engine owns the quote store, the registry and the event
// queue, and drives them from a single loop.
package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/eventq"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
	"github.com/October-1030/AAOKX-sub001/internal/metrics"
	"github.com/October-1030/AAOKX-sub001/internal/quote"
)

// Config holds the engine knobs.
type Config struct {
	MinProfitPercent  exact.Decimal
	MaxTradeSize      exact.Decimal
	MaxRiskScore      exact.Decimal
	MinConfidence     exact.Decimal
	LatencyMsPerPoint int64
	OpportunityTTL    time.Duration
	QuoteStaleness    time.Duration
	QuoteRetention    time.Duration
	MaxBatchSize      int
	BacklogWarning    int
	ScanInterval      time.Duration
	DispatchInterval  time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinProfitPercent:  exact.MustParse("0.3"),
		MaxTradeSize:      exact.Zero,
		MaxRiskScore:      exact.FromInt(40),
		MinConfidence:     exact.FromInt(60),
		LatencyMsPerPoint: 25,
		OpportunityTTL:    45 * time.Second,
		QuoteStaleness:    quote.DefaultStalenessWindow,
		QuoteRetention:    quote.DefaultRetentionWindow,
		MaxBatchSize:      50,
		BacklogWarning:    100,
		ScanInterval:      time.Second,
		DispatchInterval:  100 * time.Millisecond,
	}
}

// Validate returns an error wrapping domain.ErrInvalidConfig that lists
// every invalid knob.
func (c Config) Validate() error {
	var errs []string
	if c.MinProfitPercent.IsNegative() {
		errs = append(errs, "min_profit_percent must be >= 0")
	}
	if c.MaxTradeSize.IsNegative() {
		errs = append(errs, "max_trade_size must be >= 0")
	}
	if c.MaxRiskScore.IsNegative() || c.MaxRiskScore.GreaterThan(exact.Hundred) {
		errs = append(errs, "max_risk_score must be within 0-100")
	}
	if c.MinConfidence.IsNegative() || c.MinConfidence.GreaterThan(exact.Hundred) {
		errs = append(errs, "min_confidence must be within 0-100")
	}
	if c.LatencyMsPerPoint < 1 {
		errs = append(errs, "latency_ms_per_point must be >= 1")
	}
	if c.OpportunityTTL <= 0 {
		errs = append(errs, "opportunity_ttl must be > 0")
	}
	if c.QuoteStaleness <= 0 {
		errs = append(errs, "quote_staleness must be > 0")
	}
	if c.QuoteRetention < c.QuoteStaleness {
		errs = append(errs, "quote_retention must be >= quote_staleness")
	}
	if c.MaxBatchSize < 1 {
		errs = append(errs, "max_batch_size must be >= 1")
	}
	if c.BacklogWarning < 0 {
		errs = append(errs, "backlog_warning must be >= 0")
	}
	if c.ScanInterval <= 0 {
		errs = append(errs, "scan_interval must be > 0")
	}
	if c.DispatchInterval <= 0 {
		errs = append(errs, "dispatch_interval must be > 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithMetrics records into m instead of a private collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator replaces random UUIDs for opportunity IDs.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine is the scanner service object. Quote ingestion may be called from
// any goroutine; scanning and dispatching happen on the goroutine running Run.
type Engine struct {
	cfg        Config
	quotes     *quote.Store
	registry   *Registry
	queue      *eventq.Queue
	scanner    *Scanner
	dispatcher *Dispatcher

	clock   func() time.Time
	newID   func() string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine validates cfg and builds the engine.
func NewEngine(cfg Config, venues domain.VenueBook, symbolRisk map[domain.Symbol]uint8, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arbitrage: new engine: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:    cfg,
		clock:  time.Now,
		logger: logger.With(slog.String("component", "arb_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}

	risk := make(map[domain.Symbol]uint8, len(symbolRisk))
	for k, v := range symbolRisk {
		risk[k] = v
	}

	e.quotes = quote.NewStore(cfg.QuoteStaleness, cfg.QuoteRetention)
	e.queue = eventq.New()
	e.scanner = &Scanner{
		quotes:     e.quotes,
		venues:     venues,
		symbolRisk: risk,
		spread: SpreadConfig{
			MinProfitPercent: cfg.MinProfitPercent,
			MaxTradeSize:     cfg.MaxTradeSize,
		},
		scorer: NewRiskScorer(RiskConfig{
			MaxRiskScore:      cfg.MaxRiskScore,
			MinConfidence:     cfg.MinConfidence,
			MinProfitPercent:  cfg.MinProfitPercent,
			LatencyMsPerPoint: cfg.LatencyMsPerPoint,
		}),
		queue:   e.queue,
		metrics: e.metrics,
		logger:  e.logger,
	}
	e.registry = NewRegistry(cfg.OpportunityTTL, e.scanner, e.newID)
	e.scanner.registry = e.registry
	e.dispatcher = &Dispatcher{
		queue:          e.queue,
		registry:       e.registry,
		maxBatch:       cfg.MaxBatchSize,
		backlogWarning: cfg.BacklogWarning,
		clock:          e.now,
		metrics:        e.metrics,
		logger:         e.logger,
		subs:           make(map[uint64]*subscriber),
	}
	return e, nil
}

func (e *Engine) now() time.Time { return e.clock() }

// OnQuote is the ingestion callback for feed adapters. Out-of-order quotes
// are dropped silently. Negative prices or sizes fail with
// domain.ErrInvariantViolation.
func (e *Engine) OnQuote(venue domain.VenueID, symbol domain.Symbol, bid, ask, bidSize, askSize exact.Decimal, observedAt time.Time) error {
	_, _, err := e.Accept(venue, symbol, bid, ask, bidSize, askSize, observedAt)
	return err
}

// Accept is OnQuote that also returns the validated quote and whether it
// replaced the stored one.
func (e *Engine) Accept(venue domain.VenueID, symbol domain.Symbol, bid, ask, bidSize, askSize exact.Decimal, observedAt time.Time) (domain.Quote, bool, error) {
	q, err := domain.NewQuote(venue, symbol, bid, ask, bidSize, askSize, observedAt)
	if err != nil {
		e.metrics.QuotesDropped.WithLabelValues(string(venue), "invalid").Inc()
		return domain.Quote{}, false, fmt.Errorf("arbitrage: on quote: %w", err)
	}
	return q, e.Ingest(q), nil
}

// Ingest stores an already validated quote and reports whether it was newer
// than the stored one.
func (e *Engine) Ingest(q domain.Quote) bool {
	if !e.quotes.Upsert(q) {
		e.metrics.QuotesDropped.WithLabelValues(string(q.Venue), "out_of_order").Inc()
		return false
	}
	e.metrics.QuotesAccepted.WithLabelValues(string(q.Venue)).Inc()
	e.queue.Enqueue(domain.NewQuoteEvent(q, e.now()))
	return true
}

// Subscribe registers an event consumer. See Dispatcher.Subscribe.
func (e *Engine) Subscribe(buffer int, types ...domain.EventType) (<-chan domain.Event, func()) {
	return e.dispatcher.Subscribe(buffer, types...)
}

// ListLive returns snapshots of the live opportunities, least risky first.
func (e *Engine) ListLive() []domain.Opportunity {
	return e.registry.ListLive(e.now())
}

// Get returns the snapshot of one live opportunity.
func (e *Engine) Get(id string) (domain.Opportunity, bool) {
	opp, ok := e.registry.Get(id)
	if !ok || opp.Expired(e.now()) {
		return domain.Opportunity{}, false
	}
	return opp, true
}

// Revalidate rechecks an opportunity against the current quotes.
func (e *Engine) Revalidate(id string) domain.ValidationResult {
	return e.registry.Revalidate(id, e.now())
}

// IsValid rechecks the live opportunity for key.
func (e *Engine) IsValid(key domain.OpportunityKey) bool {
	return e.registry.IsValid(key, e.now())
}

// Quotes returns the fresh quotes for symbol.
func (e *Engine) Quotes(symbol domain.Symbol) []domain.Quote {
	return e.quotes.QuotesFor(symbol, e.now())
}

// Symbols returns every symbol with a stored quote.
func (e *Engine) Symbols() []domain.Symbol {
	return e.quotes.Symbols()
}

// QueueDepth returns the number of undispatched events.
func (e *Engine) QueueDepth() int {
	return e.queue.Len()
}

// Metrics returns the collectors the engine records into.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// ScanOnce runs one scanner tick at now.
func (e *Engine) ScanOnce(now time.Time) ScanStats {
	start := time.Now()
	st := e.scanner.Scan(now)
	e.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	return st
}

// DispatchOnce drains one batch of events.
func (e *Engine) DispatchOnce() int {
	return e.dispatcher.DispatchOnce()
}

// Run drives the scan and dispatch ticks until ctx is cancelled. Subscriber
// channels are closed when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	scan := time.NewTicker(e.cfg.ScanInterval)
	defer scan.Stop()
	dispatch := time.NewTicker(e.cfg.DispatchInterval)
	defer dispatch.Stop()
	defer e.dispatcher.Close()

	e.logger.InfoContext(ctx, "arb engine started",
		slog.Duration("scan_interval", e.cfg.ScanInterval),
		slog.Duration("dispatch_interval", e.cfg.DispatchInterval),
		slog.Duration("opportunity_ttl", e.cfg.OpportunityTTL),
	)
	defer e.logger.Info("arb engine stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-scan.C:
			st := e.ScanOnce(e.now())
			if st.Detected > 0 || st.Expired > 0 || st.Invalidated > 0 {
				e.logger.DebugContext(ctx, "scan tick",
					slog.Int("symbols", st.Symbols),
					slog.Int("pairs", st.Pairs),
					slog.Int("detected", st.Detected),
					slog.Int("refreshed", st.Refreshed),
					slog.Int("expired", st.Expired),
					slog.Int("invalidated", st.Invalidated),
				)
			}
		case <-dispatch.C:
			e.DispatchOnce()
		}
	}
}
