// Package notify fans opportunity alerts out to chat channels. Senders are
// filtered by event type so operators only receive what they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify only forwards allowed event
// types; an empty allow list passes everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends to all senders when event passes the filter. Sender failures
// do not stop delivery to the rest; they are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// FormatOpportunity renders an alert for a detected or closed opportunity.
func FormatOpportunity(ev domain.Event) (title, message string) {
	o := ev.Opportunity
	if o == nil {
		return string(ev.Type), ""
	}
	switch ev.Type {
	case domain.EventOpportunityExpired:
		title = fmt.Sprintf("Closed %s %s→%s (%s)", o.Symbol, o.BuyVenue, o.SellVenue, ev.Reason)
	default:
		title = fmt.Sprintf("Arbitrage %s %s→%s", o.Symbol, o.BuyVenue, o.SellVenue)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "buy %s @ %s, sell %s @ %s\n", o.BuyVenue, o.BuyPrice, o.SellVenue, o.SellPrice)
	fmt.Fprintf(&b, "net %s%% (gross %s%%), est. profit %s on size %s\n",
		o.NetProfitPercent.StringFixed(4), o.GrossSpreadPercent.StringFixed(4),
		o.EstimatedProfit.StringFixed(4), o.RecommendedSize)
	fmt.Fprintf(&b, "risk %s, confidence %s%%, refreshes %d\n",
		o.RiskScore.StringFixed(1), o.Confidence.StringFixed(1), o.Refreshes)
	fmt.Fprintf(&b, "id %s", o.ID)
	return title, b.String()
}
