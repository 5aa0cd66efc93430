package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	eng := cfg.EngineSettings()
	assert.Equal(t, "0.3", eng.MinProfitPercent.String())
	assert.Equal(t, 45*time.Second, eng.OpportunityTTL)
	assert.Equal(t, 30*time.Second, eng.QuoteStaleness)
	assert.Equal(t, 100*time.Millisecond, eng.DispatchInterval)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "scan"

[engine]
min_profit_percent = "0.5"
opportunity_ttl_ms = 30000

[[venues]]
id = "alpha"
taker_fee_percent = "0.05"
max_slippage_percent = "0.1"
typical_latency_ms = 40
reputation_risk_units = 2
min_order_size = "0.01"

[symbol_risk_units]
BTC = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.5", cfg.Engine.MinProfitPercent.String())
	assert.Equal(t, int64(30000), cfg.Engine.OpportunityTTLMs)
	assert.Equal(t, int64(30000), cfg.Engine.QuoteStalenessWindowMs, "untouched keys keep defaults")

	book := cfg.VenueBook()
	alpha := book.Lookup("alpha")
	assert.True(t, alpha.Known)
	assert.Equal(t, "0.05", alpha.TakerFeePercent.String())
	assert.Equal(t, uint32(40), alpha.TypicalLatencyMs)

	other := book.Lookup("beta")
	assert.False(t, other.Known)
	assert.Equal(t, domain.VenueID("beta"), other.ID)
	assert.Equal(t, uint32(200), other.TypicalLatencyMs)

	assert.Equal(t, uint8(3), cfg.SymbolRisk()["BTC"])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTOML(t, `
[engine]
min_profit_pct = "0.5"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.min_profit_pct")
}

func TestLoadRejectsBadDecimal(t *testing.T) {
	path := writeTOML(t, `
[engine]
min_profit_percent = "abc"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBSCAN_ENGINE_MIN_PROFIT_PERCENT", "0.75")
	t.Setenv("ARBSCAN_ENGINE_OPPORTUNITY_TTL_MS", "60000")
	t.Setenv("ARBSCAN_SERVER_PORT", "9100")
	t.Setenv("ARBSCAN_FEED_WEBSOCKET_URLS", "ws://a/quotes, ws://b/quotes")
	t.Setenv("ARBSCAN_MODE", "full")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.75", cfg.Engine.MinProfitPercent.String())
	assert.Equal(t, int64(60000), cfg.Engine.OpportunityTTLMs)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"ws://a/quotes", "ws://b/quotes"}, cfg.Feed.WebsocketURLs)
	assert.Equal(t, "full", cfg.Mode)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Engine.OpportunityTTLMs = -1
	cfg.Engine.MaxRiskScore = cfg.Engine.MaxRiskScore.Neg()
	cfg.Venues = []VenueConfig{
		{ID: "a", TakerFeePercent: cfg.DefaultVenue.TakerFeePercent.Neg()},
		{ID: "a", ReputationRiskUnits: 300},
	}
	cfg.SymbolRiskUnits = map[string]int{"BTC": -1}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
	for _, want := range []string{
		`unknown mode "trade"`,
		"opportunity_ttl must be > 0",
		"max_risk_score must be within 0-100",
		"venues[0]: taker_fee_percent must be >= 0",
		`venues[1]: duplicate id "a"`,
		"venues[1]: reputation_risk_units must be 0-255",
		"symbol_risk_units: BTC must be 0-255",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFullModeRequiresBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.Redis.Addr = ""
	cfg.Postgres.Host = ""
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "postgres: host")
	assert.Contains(t, err.Error(), "s3: bucket")

	cfg.Mode = "scan"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "key"
	cfg.Notify.Events = []string{"x"}

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "", red.Redis.Password)

	red.Notify.Events[0] = "y"
	assert.Equal(t, "x", cfg.Notify.Events[0])
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
