package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

var errLeadershipLost = errors.New("leadership lost")

// lead runs work only while this process holds the lock at key. When the
// lease cannot be refreshed work is cancelled and the campaign starts over.
// Followers retry every ttl/3.
func lead(ctx context.Context, locks domain.LockManager, key string, ttl time.Duration, logger *slog.Logger, work func(context.Context) error) error {
	every := ttl / 3
	for {
		lease, err := locks.Acquire(ctx, key, ttl)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "leadership acquired", slog.String("key", key))
			err = hold(ctx, lease, every, work)

			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			if rerr := lease.Release(releaseCtx); rerr != nil {
				logger.Warn("release leadership", slog.String("error", rerr.Error()))
			}
			cancel()

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, errLeadershipLost) {
				return err
			}
			logger.WarnContext(ctx, "leadership lost, campaigning again", slog.String("error", err.Error()))
		case errors.Is(err, domain.ErrLockHeld):
			logger.DebugContext(ctx, "another replica leads", slog.String("key", key))
		default:
			logger.WarnContext(ctx, "leader campaign failed", slog.String("error", err.Error()))
		}

		t := time.NewTimer(every)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func hold(ctx context.Context, lease domain.Lease, every time.Duration, work func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- work(ctx) }()

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-t.C:
			if err := lease.Refresh(ctx); err != nil {
				cancel()
				<-done
				return fmt.Errorf("%w: %w", errLeadershipLost, err)
			}
		}
	}
}
