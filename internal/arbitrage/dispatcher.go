package arbitrage

import (
	"log/slog"
	"sync"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/eventq"
	"github.com/October-1030/AAOKX-sub001/internal/metrics"
)

type subscriber struct {
	ch    chan domain.Event
	types map[domain.EventType]bool
}

// Dispatcher drains the event queue in priority order and fans events out to
// subscribers over bounded channels. A full subscriber channel loses the
// event; the dispatcher never blocks on a consumer.
type Dispatcher struct {
	queue          *eventq.Queue
	registry       *Registry
	maxBatch       int
	backlogWarning int
	clock          func() time.Time
	metrics        *metrics.Metrics
	logger         *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

// Subscribe registers a consumer. With no types it receives opportunity
// detected and expired events; quote updates must be asked for explicitly.
// The returned function unsubscribes and closes the channel.
func (d *Dispatcher) Subscribe(buffer int, types ...domain.EventType) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	if len(types) == 0 {
		types = []domain.EventType{domain.EventOpportunityDetected, domain.EventOpportunityExpired}
	}
	sub := &subscriber{
		ch:    make(chan domain.Event, buffer),
		types: make(map[domain.EventType]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	d.nextID++
	id := d.nextID
	d.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if s, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(s.ch)
			}
		})
	}
}

// DispatchOnce drains one batch and returns the number of events taken off
// the queue.
func (d *Dispatcher) DispatchOnce() int {
	depth := d.queue.Len()
	d.metrics.QueueDepth.Set(float64(depth))
	if depth > d.backlogWarning {
		d.logger.Warn("event queue backlog",
			slog.Int("depth", depth),
			slog.Int("threshold", d.backlogWarning),
		)
	}

	batch := d.queue.DrainBatch(d.maxBatch)
	for _, ev := range batch {
		d.metrics.EventsDispatched.WithLabelValues(string(ev.Type)).Inc()
		out, ok := d.handle(ev)
		if !ok {
			continue
		}
		d.fanOut(out)
	}
	d.metrics.QueueDepth.Set(float64(d.queue.Len()))
	return len(batch)
}

// handle resolves an event before delivery. A detection whose opportunity
// has since left the live set is not delivered; a live one is delivered with
// its current figures.
func (d *Dispatcher) handle(ev domain.Event) (domain.Event, bool) {
	switch ev.Type {
	case domain.EventOpportunityDetected:
		cur, ok := d.registry.Get(ev.Opportunity.ID)
		if !ok || cur.Expired(d.clock()) {
			d.logger.Debug("skipping detection no longer live", slog.String("id", ev.Opportunity.ID))
			return ev, false
		}
		ev.Opportunity = &cur
		return ev, true
	default:
		return ev, true
	}
}

func (d *Dispatcher) fanOut(ev domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, sub := range d.subs {
		if !sub.types[ev.Type] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			d.metrics.SubscriberDrops.Inc()
			d.logger.Warn("subscriber slow, event dropped",
				slog.Uint64("subscriber", id),
				slog.String("event", string(ev.Type)),
				slog.Uint64("sequence", ev.Sequence),
			)
		}
	}
}

// Close unsubscribes everyone and closes their channels.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, sub := range d.subs {
		close(sub.ch)
		delete(d.subs, id)
	}
}
