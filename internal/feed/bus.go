package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

// BusFeed consumes quote JSON from a pub/sub channel, for deployments where
// a separate collector process normalizes venue data.
type BusFeed struct {
	bus     domain.SignalBus
	channel string
	handle  Handler
	now     func() time.Time
	logger  *slog.Logger
}

// NewBusFeed creates a BusFeed reading channel.
func NewBusFeed(bus domain.SignalBus, channel string, handle Handler, logger *slog.Logger) *BusFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusFeed{
		bus:     bus,
		channel: channel,
		handle:  handle,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "bus_feed"), slog.String("channel", channel)),
	}
}

// Run subscribes and processes messages until ctx is cancelled or the
// subscription closes.
func (f *BusFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	f.logger.Info("bus feed started")
	defer f.logger.Info("bus feed stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			ups, err := Decode(data, f.now())
			if err != nil {
				f.logger.Debug("undecodable quote message", slog.String("error", err.Error()))
				continue
			}
			for _, u := range ups {
				if err := f.handle(ctx, u); err != nil {
					f.logger.Debug("quote rejected",
						slog.String("venue", string(u.Venue)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}
