package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/feed"
	"github.com/October-1030/AAOKX-sub001/internal/server"
	"github.com/October-1030/AAOKX-sub001/internal/server/handler"
	"github.com/October-1030/AAOKX-sub001/internal/server/ws"
	"github.com/October-1030/AAOKX-sub001/internal/service"
)

const (
	hubBuffer      = 256
	recorderBuffer = 1024
	alertBuffer    = 64
)

var allEvents = []domain.EventType{
	domain.EventQuoteUpdated,
	domain.EventOpportunityDetected,
	domain.EventOpportunityExpired,
}

// ScanMode runs the in-memory engine, the websocket quote feeds and the API.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)
	quotes := service.NewQuoteService(deps.Engine, nil, nil, a.logger)
	a.startCore(ctx, g, deps, quotes)
	return g.Wait()
}

// FullMode adds the Redis quote mirror and bus feed, history recording,
// alerts and archiving on top of scan mode. Recording, alerts and archiving
// run on the leader only when leader election is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	quotes := service.NewQuoteService(deps.Engine, deps.QuoteCache, deps.SignalBus, a.logger)
	if _, err := quotes.Warm(ctx); err != nil {
		a.logger.WarnContext(ctx, "quote cache warm-up failed", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startCore(ctx, g, deps, quotes)

	if ch := a.cfg.Feed.BusChannel; ch != "" && deps.SignalBus != nil {
		bf := feed.NewBusFeed(deps.SignalBus, ch, quotes.Handle, a.logger)
		g.Go(func() error { return bf.Run(ctx) })
	}

	leaderWork := func(ctx context.Context) error { return a.runLeaderServices(ctx, deps) }
	if a.cfg.Leader.Enabled && deps.LockManager != nil {
		g.Go(func() error {
			return lead(ctx, deps.LockManager, a.cfg.Leader.Key, a.cfg.Leader.TTL.Duration, a.logger, leaderWork)
		})
	} else {
		g.Go(func() error { return leaderWork(ctx) })
	}

	return g.Wait()
}

// startCore adds the engine, quote feeds, websocket hub and HTTP server to g.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, quotes *service.QuoteService) {
	engine := deps.Engine
	g.Go(func() error { return engine.Run(ctx) })

	backoff := feed.Backoff{
		Initial: a.cfg.Feed.ReconnectInitial.Duration,
		Max:     a.cfg.Feed.ReconnectMax.Duration,
	}
	for _, url := range a.cfg.Feed.WebsocketURLs {
		wf := feed.NewWebsocketFeed(url, quotes.Handle, backoff, a.logger)
		g.Go(func() error { return wf.Run(ctx) })
	}
	if len(a.cfg.Feed.WebsocketURLs) == 0 && a.cfg.Feed.BusChannel == "" {
		a.logger.WarnContext(ctx, "no quote feeds configured; the engine will stay idle")
	}

	if !a.cfg.Server.Enabled {
		return
	}

	hub := ws.NewHub(engine, a.logger)
	events, unsubscribe := engine.Subscribe(hubBuffer, allEvents...)
	g.Go(func() error {
		defer unsubscribe()
		return hub.Run(ctx, events)
	})

	a.startHTTPServer(ctx, g, deps, hub)
}

// startHTTPServer adds the API server to g and shuts it down gracefully when
// ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	opps := service.NewOpportunityService(deps.Engine, deps.OpportunityStore)

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, deps.Engine, deps.Checks, a.logger),
		Opportunities: handler.NewOpportunityHandler(opps, a.logger),
		Quotes:        handler.NewQuoteHandler(opps),
		Metrics:       deps.Metrics.Handler(),
	}
	if deps.BlobReader != nil && deps.Archiver != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, deps.Archiver, a.retention(), a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:             a.cfg.Server.Port,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		APIKey:           a.cfg.Server.APIKey,
		RevalidateLimit:  a.cfg.Server.RevalidateLimit,
		RevalidateWindow: a.cfg.Server.RevalidateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runLeaderServices records history, sends alerts and archives until ctx is
// cancelled. Each consumer gets its own engine subscription.
func (a *App) runLeaderServices(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	if deps.OpportunityStore != nil {
		recorder := service.NewOpportunityRecorder(deps.OpportunityStore, deps.SignalBus, deps.AuditStore, a.logger)
		events, unsubscribe := deps.Engine.Subscribe(recorderBuffer)
		g.Go(func() error {
			defer unsubscribe()
			return recorder.Run(ctx, events)
		})
	}

	if deps.Notifier.Enabled() {
		events, unsubscribe := deps.Engine.Subscribe(alertBuffer)
		g.Go(func() error {
			defer unsubscribe()
			return service.RunAlerts(ctx, events, deps.Notifier, a.logger)
		})
	}

	if deps.Archiver != nil && a.cfg.Archive.Enabled {
		g.Go(func() error { return a.runArchiver(ctx, deps.Archiver) })
	}

	return g.Wait()
}

func (a *App) retention() time.Duration {
	return time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
}

// runArchiver archives on every tick of archive.interval.
func (a *App) runArchiver(ctx context.Context, archiver domain.Archiver) error {
	t := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			before := time.Now().UTC().Add(-a.retention())
			n, err := archiver.ArchiveOpportunities(ctx, before)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return ctx.Err()
				}
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archived opportunities", slog.Int64("count", n))
			}
		}
	}
}
