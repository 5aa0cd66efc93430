package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDecimal(&cfg.Engine.MinProfitPercent, "ARBSCAN_ENGINE_MIN_PROFIT_PERCENT")
	setDecimal(&cfg.Engine.MaxTradeSize, "ARBSCAN_ENGINE_MAX_TRADE_SIZE")
	setDecimal(&cfg.Engine.MaxRiskScore, "ARBSCAN_ENGINE_MAX_RISK_SCORE")
	setDecimal(&cfg.Engine.MinConfidencePercent, "ARBSCAN_ENGINE_MIN_CONFIDENCE_PERCENT")
	setInt64(&cfg.Engine.OpportunityTTLMs, "ARBSCAN_ENGINE_OPPORTUNITY_TTL_MS")
	setInt64(&cfg.Engine.QuoteStalenessWindowMs, "ARBSCAN_ENGINE_QUOTE_STALENESS_WINDOW_MS")
	setInt64(&cfg.Engine.QuoteRetentionWindowMs, "ARBSCAN_ENGINE_QUOTE_RETENTION_WINDOW_MS")
	setInt(&cfg.Engine.MaxBatchSize, "ARBSCAN_ENGINE_MAX_BATCH_SIZE")
	setInt64(&cfg.Engine.ScanIntervalMs, "ARBSCAN_ENGINE_SCAN_INTERVAL_MS")

	// ── Feed ──
	setStringSlice(&cfg.Feed.WebsocketURLs, "ARBSCAN_FEED_WEBSOCKET_URLS")
	setStr(&cfg.Feed.BusChannel, "ARBSCAN_FEED_BUS_CHANNEL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCAN_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCAN_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCAN_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCAN_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCAN_S3_FORCE_PATH_STYLE")

	// ── Archive / leader ──
	setBool(&cfg.Archive.Enabled, "ARBSCAN_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ARBSCAN_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "ARBSCAN_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Leader.Enabled, "ARBSCAN_LEADER_ENABLED")
	setDuration(&cfg.Leader.TTL, "ARBSCAN_LEADER_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBSCAN_SERVER_API_KEY")
	setInt(&cfg.Server.RevalidateLimit, "ARBSCAN_SERVER_REVALIDATE_LIMIT")
	setDuration(&cfg.Server.RevalidateWindow, "ARBSCAN_SERVER_REVALIDATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBSCAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCAN_MODE")
	setStr(&cfg.LogLevel, "ARBSCAN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *exact.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := exact.Parse(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
