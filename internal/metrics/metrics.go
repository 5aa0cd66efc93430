// Package metrics defines the Prometheus collectors of the scanner.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. Collectors are registered on the registry
// passed to New, never on the global default.
type Metrics struct {
	registry *prometheus.Registry

	QuotesAccepted        *prometheus.CounterVec
	QuotesDropped         *prometheus.CounterVec
	QuotesSwept           prometheus.Counter
	OpportunitiesDetected *prometheus.CounterVec
	OpportunitiesClosed   *prometheus.CounterVec
	OpportunitiesLive     prometheus.Gauge
	BestNetProfit         *prometheus.GaugeVec
	QueueDepth            prometheus.Gauge
	EventsDispatched      *prometheus.CounterVec
	SubscriberDrops       prometheus.Counter
	ScanDuration          prometheus.Histogram
	CandidatesRejected    *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		QuotesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_quotes_accepted_total",
			Help: "Quotes stored in the quote store",
		}, []string{"venue"}),
		QuotesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_quotes_dropped_total",
			Help: "Quotes dropped as out-of-order or invalid",
		}, []string{"venue", "reason"}),
		QuotesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbscan_quotes_swept_total",
			Help: "Quotes evicted past the retention window",
		}),
		OpportunitiesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_opportunities_detected_total",
			Help: "First detections of an opportunity key",
		}, []string{"symbol"}),
		OpportunitiesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_opportunities_closed_total",
			Help: "Opportunities removed from the live set",
		}, []string{"reason"}),
		OpportunitiesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_opportunities_live",
			Help: "Opportunities currently live",
		}),
		BestNetProfit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbscan_best_net_profit_percent",
			Help: "Best live net profit percent per symbol",
		}, []string{"symbol"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_event_queue_depth",
			Help: "Events waiting in the priority queue",
		}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_events_dispatched_total",
			Help: "Events drained by the dispatcher",
		}, []string{"type"}),
		SubscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbscan_subscriber_drops_total",
			Help: "Events dropped because a subscriber channel was full",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbscan_scan_duration_seconds",
			Help:    "Duration of one scanner tick",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		CandidatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_candidates_rejected_total",
			Help: "Spread candidates rejected by the risk filter",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.QuotesAccepted,
		m.QuotesDropped,
		m.QuotesSwept,
		m.OpportunitiesDetected,
		m.OpportunitiesClosed,
		m.OpportunitiesLive,
		m.BestNetProfit,
		m.QueueDepth,
		m.EventsDispatched,
		m.SubscriberDrops,
		m.ScanDuration,
		m.CandidatesRejected,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
