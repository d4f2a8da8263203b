package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"aggconflate/internal/model"
)

// Config holds the infrastructure-level settings loaded from environment
// variables: where the metrics/health server listens, and where the
// preferences/drawings SQLite database lives.
type Config struct {
	MetricsAddr string
	AppDataDir  string
	DBFilename  string
}

// Load reads infra config from the environment with sensible defaults.
func Load() *Config {
	return &Config{
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		AppDataDir:  getEnv("APP_DATA_DIR", "data"),
		DBFilename:  getEnv("APP_DB_FILENAME", "market.db"),
	}
}

// DBPath joins the app data directory and filename into a single path.
func (c *Config) DBPath() string {
	return filepath.Join(c.AppDataDir, c.DBFilename)
}

// StreamArgsFromEnv seeds a StartMarketStreamArgs from environment
// variables on top of DefaultStartMarketStreamArgs. Unset variables, and
// numeric ones that fail to parse, keep their defaults; non-empty string
// values (SYMBOL, TIMEFRAME, STARTUP_MODE, MARKET_KIND) are passed through
// as-is and validated later by Normalize. Only meant for booting the standalone
// cmd/mdengine binary — the host UI runtime calls start_market_stream
// with explicit args instead.
func StreamArgsFromEnv() model.StartMarketStreamArgs {
	args := model.DefaultStartMarketStreamArgs()

	if v := os.Getenv("SYMBOL"); v != "" {
		args.Symbol = v
	}
	if v, ok := getEnvFloat("MIN_NOTIONAL_USDT"); ok {
		args.MinNotionalUSDT = v
	}
	if v, ok := getEnvInt64("EMIT_INTERVAL_MS"); ok {
		args.EmitIntervalMs = v
	}
	if v, ok := getEnvInt64("CLOCK_SYNC_INTERVAL_MS"); ok {
		args.ClockSyncIntervalMs = v
	}
	if v, ok := getEnvInt("HISTORY_LIMIT"); ok {
		args.HistoryLimit = v
	}
	if v := os.Getenv("TIMEFRAME"); v != "" {
		args.Timeframe = model.Timeframe(v)
	}
	if v := os.Getenv("STARTUP_MODE"); v != "" {
		args.StartupMode = model.StartupMode(v)
	}
	if v := os.Getenv("MARKET_KIND"); v != "" {
		args.MarketKind = model.MarketKind(v)
	}

	args.MockMode = getEnvBool("MOCK_MODE")
	args.LegacyEvents = getEnvBool("LEGACY_EVENTS")
	args.PerfTelemetry = getEnvBool("PERF_TELEMETRY")

	return args
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}

func getEnvFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func getEnvInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
