package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/arbitrage"
	s3blob "github.com/October-1030/AAOKX-sub001/internal/blob/s3"
	"github.com/October-1030/AAOKX-sub001/internal/cache/redis"
	"github.com/October-1030/AAOKX-sub001/internal/config"
	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/metrics"
	"github.com/October-1030/AAOKX-sub001/internal/notify"
	"github.com/October-1030/AAOKX-sub001/internal/server/handler"
	"github.com/October-1030/AAOKX-sub001/internal/store/postgres"
)

// Dependencies bundles everything the modes run. Backend fields stay nil in
// scan mode; consumers treat nil as "not configured".
type Dependencies struct {
	Engine  *arbitrage.Engine
	Metrics *metrics.Metrics

	// Stores
	OpportunityStore domain.OpportunityStore
	AuditStore       domain.AuditStore

	// Caches
	QuoteCache  domain.QuoteCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier *notify.Notifier

	// Checks are probed by GET /api/health.
	Checks map[string]handler.Check
}

// Wire builds the engine and, in full mode, the Redis, Postgres and S3
// adapters. The returned cleanup releases connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	m := metrics.New()
	engine, err := arbitrage.NewEngine(cfg.EngineSettings(), cfg.VenueBook(), cfg.SymbolRisk(), logger,
		arbitrage.WithMetrics(m))
	if err != nil {
		return nil, nil, fmt.Errorf("wire: engine: %w", err)
	}
	deps := &Dependencies{
		Engine:  engine,
		Metrics: m,
		Checks:  map[string]handler.Check{},
	}
	if cfg.Mode != "full" {
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	opportunities := postgres.NewOpportunityStore(pgClient.Pool())
	deps.OpportunityStore = opportunities
	deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
	deps.Checks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	// Cached quotes outlive the retention window only long enough to warm a
	// restarted process.
	quoteTTL := time.Duration(cfg.Engine.QuoteRetentionWindowMs) * time.Millisecond
	deps.QuoteCache = redis.NewQuoteCache(redisClient, quoteTTL)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, logger)
	deps.Checks["redis"] = redisClient.Ping

	// --- S3 blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	reader := s3blob.NewReader(s3Client)
	deps.BlobReader = reader
	deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), reader, opportunities, deps.AuditStore, logger)
	deps.Checks["s3"] = s3Client.Health

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
