package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/notify"
)

// OpportunityRecorder consumes engine events and persists them: history
// rows, the opportunities channel, the durable event stream and the audit
// log. Every dependency is optional.
type OpportunityRecorder struct {
	store  domain.OpportunityStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewOpportunityRecorder creates an OpportunityRecorder.
func NewOpportunityRecorder(store domain.OpportunityStore, bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *OpportunityRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpportunityRecorder{
		store:  store,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "recorder")),
	}
}

// Run handles events until ctx ends or events closes.
func (r *OpportunityRecorder) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.logger.ErrorContext(ctx, "record event failed",
					slog.String("event", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Handle records one event. Only store failures are returned.
func (r *OpportunityRecorder) Handle(ctx context.Context, ev domain.Event) error {
	if ev.Opportunity == nil {
		return nil
	}
	opp := *ev.Opportunity

	var err error
	switch ev.Type {
	case domain.EventOpportunityDetected:
		err = r.persist(ctx, opp)
		r.auditLog(ctx, "opportunity.detected", opp, map[string]any{
			"gross_spread_percent": opp.GrossSpreadPercent.String(),
			"estimated_profit":     opp.EstimatedProfit.String(),
			"recommended_size":     opp.RecommendedSize.String(),
			"confidence":           opp.Confidence.String(),
		})
	case domain.EventOpportunityExpired:
		err = r.persist(ctx, opp)
		if err == nil && r.store != nil {
			if cerr := r.store.Close(ctx, opp.ID, ev.Reason, ev.At); cerr != nil {
				err = fmt.Errorf("recorder: close %s: %w", opp.ID, cerr)
			}
		}
		r.auditLog(ctx, "opportunity.closed", opp, map[string]any{
			"reason":    string(ev.Reason),
			"refreshes": opp.Refreshes,
		})
	default:
		return nil
	}

	r.publish(ctx, ev)
	return err
}

func (r *OpportunityRecorder) persist(ctx context.Context, opp domain.Opportunity) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Upsert(ctx, opp); err != nil {
		return fmt.Errorf("recorder: upsert %s: %w", opp.ID, err)
	}
	return nil
}

func (r *OpportunityRecorder) publish(ctx context.Context, ev domain.Event) {
	if r.bus == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.WarnContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := r.bus.Publish(ctx, domain.ChannelOpportunities, data); err != nil {
		r.logger.WarnContext(ctx, "publish opportunity failed", slog.String("error", err.Error()))
	}
	if _, err := r.bus.StreamAppend(ctx, domain.StreamOpportunityEvents, data); err != nil {
		r.logger.WarnContext(ctx, "append opportunity event failed", slog.String("error", err.Error()))
	}
}

func (r *OpportunityRecorder) auditLog(ctx context.Context, event string, opp domain.Opportunity, extra map[string]any) {
	if r.audit == nil {
		return
	}
	detail := map[string]any{
		"id":                 opp.ID,
		"key":                opp.Key.String(),
		"net_profit_percent": opp.NetProfitPercent.String(),
		"risk_score":         opp.RiskScore.String(),
	}
	for k, v := range extra {
		detail[k] = v
	}
	if err := r.audit.Log(ctx, event, detail); err != nil {
		r.logger.WarnContext(ctx, "audit log failed",
			slog.String("id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Alerter is satisfied by *notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunAlerts forwards opportunity events to alerter. It runs on its own
// subscription so slow chat APIs never hold up the recorder.
func RunAlerts(ctx context.Context, events <-chan domain.Event, alerter Alerter, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			title, msg := notify.FormatOpportunity(ev)
			if err := alerter.Notify(ctx, string(ev.Type), title, msg); err != nil && !errors.Is(err, context.Canceled) {
				logger.WarnContext(ctx, "alert failed", slog.String("error", err.Error()))
			}
		}
	}
}
