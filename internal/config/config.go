// Package config defines the top-level configuration of the arbitrage scanner
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/arbitrage"
	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Engine          EngineConfig   `toml:"engine"`
	Venues          []VenueConfig  `toml:"venues"`
	DefaultVenue    VenueConfig    `toml:"default_venue"`
	SymbolRiskUnits map[string]int `toml:"symbol_risk_units"`
	Feed            FeedConfig     `toml:"feed"`
	Redis           RedisConfig    `toml:"redis"`
	Postgres        PostgresConfig `toml:"postgres"`
	S3              S3Config       `toml:"s3"`
	Archive         ArchiveConfig  `toml:"archive"`
	Leader          LeaderConfig   `toml:"leader"`
	Server          ServerConfig   `toml:"server"`
	Notify          NotifyConfig   `toml:"notify"`
	Mode            string         `toml:"mode"`
	LogLevel        string         `toml:"log_level"`
}

// EngineConfig holds the detection knobs. Decimal values are quoted strings
// in TOML, e.g. min_profit_percent = "0.3".
type EngineConfig struct {
	MinProfitPercent       exact.Decimal `toml:"min_profit_percent"`
	MaxTradeSize           exact.Decimal `toml:"max_trade_size"`
	MaxRiskScore           exact.Decimal `toml:"max_risk_score"`
	MinConfidencePercent   exact.Decimal `toml:"min_confidence_percent"`
	LatencyMsPerPoint      int64         `toml:"latency_ms_per_point"`
	OpportunityTTLMs       int64         `toml:"opportunity_ttl_ms"`
	QuoteStalenessWindowMs int64         `toml:"quote_staleness_window_ms"`
	QuoteRetentionWindowMs int64         `toml:"quote_retention_window_ms"`
	MaxBatchSize           int           `toml:"max_batch_size"`
	BacklogWarning         int           `toml:"backlog_warning"`
	ScanIntervalMs         int64         `toml:"scan_interval_ms"`
	DispatchIntervalMs     int64         `toml:"dispatch_interval_ms"`
}

// VenueConfig describes one venue's costs and risk.
type VenueConfig struct {
	ID                  string        `toml:"id"`
	TakerFeePercent     exact.Decimal `toml:"taker_fee_percent"`
	MaxSlippagePercent  exact.Decimal `toml:"max_slippage_percent"`
	TypicalLatencyMs    int           `toml:"typical_latency_ms"`
	ReputationRiskUnits int           `toml:"reputation_risk_units"`
	MinOrderSize        exact.Decimal `toml:"min_order_size"`
}

// FeedConfig selects the quote ingestion adapters.
type FeedConfig struct {
	// WebsocketURLs are dialed by the websocket feed; each connection
	// streams normalized quote JSON.
	WebsocketURLs []string `toml:"websocket_urls"`
	// BusChannel, when set, consumes the same JSON from a Redis channel.
	BusChannel       string   `toml:"bus_channel"`
	ReconnectInitial duration `toml:"reconnect_initial"`
	ReconnectMax     duration `toml:"reconnect_max"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls moving closed opportunities to cold storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// LeaderConfig controls the Redis lock that keeps one scanner active across
// replicas.
type LeaderConfig struct {
	Enabled bool     `toml:"enabled"`
	Key     string   `toml:"key"`
	TTL     duration `toml:"ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RevalidateLimit caps revalidation calls per client IP per
	// RevalidateWindow. Enforced through Redis, so only in full mode.
	RevalidateLimit  int      `toml:"revalidate_limit"`
	RevalidateWindow duration `toml:"revalidate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MinProfitPercent:       exact.MustParse("0.3"),
			MaxTradeSize:           exact.Zero,
			MaxRiskScore:           exact.FromInt(40),
			MinConfidencePercent:   exact.FromInt(60),
			LatencyMsPerPoint:      25,
			OpportunityTTLMs:       45_000,
			QuoteStalenessWindowMs: 30_000,
			QuoteRetentionWindowMs: 60_000,
			MaxBatchSize:           50,
			BacklogWarning:         100,
			ScanIntervalMs:         1_000,
			DispatchIntervalMs:     100,
		},
		DefaultVenue: VenueConfig{
			TakerFeePercent:     exact.MustParse("0.1"),
			MaxSlippagePercent:  exact.MustParse("0.1"),
			TypicalLatencyMs:    200,
			ReputationRiskUnits: 10,
		},
		SymbolRiskUnits: map[string]int{},
		Feed: FeedConfig{
			ReconnectInitial: duration{time.Second},
			ReconnectMax:     duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscan-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       true,
			Interval:      duration{time.Hour},
			RetentionDays: 30,
		},
		Leader: LeaderConfig{
			Enabled: false,
			Key:     "arbscan:leader",
			TTL:     duration{15 * time.Second},
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			RevalidateLimit:  20,
			RevalidateWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_detected"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan": true,
	"full": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. The error wraps
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if err := c.EngineSettings().Validate(); err != nil {
		errs = append(errs, "engine: "+strings.TrimPrefix(err.Error(), domain.ErrInvalidConfig.Error()+": "))
	}

	// Venues
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		label := fmt.Sprintf("venues[%d]", i)
		if strings.TrimSpace(v.ID) == "" {
			errs = append(errs, label+": id must not be empty")
		} else if seen[v.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate id %q", label, v.ID))
		}
		seen[v.ID] = true
		errs = append(errs, v.problems(label)...)
	}
	errs = append(errs, c.DefaultVenue.problems("default_venue")...)
	for sym, units := range c.SymbolRiskUnits {
		if units < 0 || units > 255 {
			errs = append(errs, fmt.Sprintf("symbol_risk_units: %s must be 0-255, got %d", sym, units))
		}
	}

	// Feed
	if c.Feed.ReconnectInitial.Duration <= 0 || c.Feed.ReconnectMax.Duration < c.Feed.ReconnectInitial.Duration {
		errs = append(errs, "feed: reconnect_initial must be > 0 and <= reconnect_max")
	}

	if c.Mode == "full" {
		// Redis
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		// Postgres
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		// S3 and archive
		if c.Archive.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty")
			}
			if c.Archive.Interval.Duration <= 0 {
				errs = append(errs, "archive: interval must be > 0")
			}
			if c.Archive.RetentionDays < 1 {
				errs = append(errs, "archive: retention_days must be >= 1")
			}
		}
	}

	// Leader lock
	if c.Leader.Enabled {
		if c.Mode != "full" {
			errs = append(errs, "leader: requires mode full (redis)")
		}
		if c.Leader.Key == "" {
			errs = append(errs, "leader: key must not be empty")
		}
		if c.Leader.TTL.Duration < time.Second {
			errs = append(errs, "leader: ttl must be >= 1s")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RevalidateLimit < 0 {
			errs = append(errs, "server: revalidate_limit must be >= 0")
		}
		if c.Server.RevalidateLimit > 0 && c.Server.RevalidateWindow.Duration <= 0 {
			errs = append(errs, "server: revalidate_window must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func (v VenueConfig) problems(label string) []string {
	var errs []string
	if v.TakerFeePercent.IsNegative() {
		errs = append(errs, label+": taker_fee_percent must be >= 0")
	}
	if v.MaxSlippagePercent.IsNegative() {
		errs = append(errs, label+": max_slippage_percent must be >= 0")
	}
	if v.MinOrderSize.IsNegative() {
		errs = append(errs, label+": min_order_size must be >= 0")
	}
	if v.TypicalLatencyMs < 0 {
		errs = append(errs, label+": typical_latency_ms must be >= 0")
	}
	if v.ReputationRiskUnits < 0 || v.ReputationRiskUnits > 255 {
		errs = append(errs, label+": reputation_risk_units must be 0-255")
	}
	return errs
}

// Profile converts v into a venue profile. Call after Validate.
func (v VenueConfig) Profile() domain.VenueProfile {
	return domain.VenueProfile{
		ID:                  domain.VenueID(v.ID),
		TakerFeePercent:     v.TakerFeePercent,
		MaxSlippagePercent:  v.MaxSlippagePercent,
		TypicalLatencyMs:    uint32(v.TypicalLatencyMs),
		ReputationRiskUnits: uint8(v.ReputationRiskUnits),
		MinOrderSize:        v.MinOrderSize,
	}
}

// VenueBook builds the venue lookup used by the engine.
func (c *Config) VenueBook() domain.VenueBook {
	profiles := make([]domain.VenueProfile, 0, len(c.Venues))
	for _, v := range c.Venues {
		profiles = append(profiles, v.Profile())
	}
	return domain.NewVenueBook(profiles, c.DefaultVenue.Profile())
}

// SymbolRisk converts the symbol risk table.
func (c *Config) SymbolRisk() map[domain.Symbol]uint8 {
	out := make(map[domain.Symbol]uint8, len(c.SymbolRiskUnits))
	for sym, units := range c.SymbolRiskUnits {
		out[domain.Symbol(sym)] = uint8(units)
	}
	return out
}

// EngineSettings converts the engine section.
func (c *Config) EngineSettings() arbitrage.Config {
	ms := func(n int64) time.Duration { return time.Duration(n) * time.Millisecond }
	return arbitrage.Config{
		MinProfitPercent:  c.Engine.MinProfitPercent,
		MaxTradeSize:      c.Engine.MaxTradeSize,
		MaxRiskScore:      c.Engine.MaxRiskScore,
		MinConfidence:     c.Engine.MinConfidencePercent,
		LatencyMsPerPoint: c.Engine.LatencyMsPerPoint,
		OpportunityTTL:    ms(c.Engine.OpportunityTTLMs),
		QuoteStaleness:    ms(c.Engine.QuoteStalenessWindowMs),
		QuoteRetention:    ms(c.Engine.QuoteRetentionWindowMs),
		MaxBatchSize:      c.Engine.MaxBatchSize,
		BacklogWarning:    c.Engine.BacklogWarning,
		ScanInterval:      ms(c.Engine.ScanIntervalMs),
		DispatchInterval:  ms(c.Engine.DispatchIntervalMs),
	}
}
