package model

import (
	"fmt"
	"math"
	"strings"

	"aggconflate/internal/errs"
)

// StartupMode controls whether the history loader's fetch is awaited
// before the producer starts, or launched concurrently with it.
type StartupMode string

const (
	StartupLiveFirst    StartupMode = "live_first"
	StartupHistoryFirst StartupMode = "history_first"
)

const (
	DefaultSymbol              = "BTCUSDT"
	DefaultMinNotionalUSDT     = 100.0
	DefaultEmitIntervalMs      = 16
	DefaultClockSyncIntervalMs = 30_000
	DefaultHistoryLimit        = 5_000
	DefaultStartupMode         = StartupLiveFirst

	MinEmitIntervalMs      = 8
	MaxEmitIntervalMs      = 1_000
	MinClockSyncIntervalMs = 5_000
	MaxClockSyncIntervalMs = 300_000
	MinHistoryLimit        = 50
	MaxHistoryLimit        = 10_000
)

// StartMarketStreamArgs is the raw, caller-supplied session request. Call
// Normalize to obtain a validated, immutable Config.
type StartMarketStreamArgs struct {
	Symbol              string
	MinNotionalUSDT     float64
	EmitIntervalMs      int64
	MockMode            bool
	LegacyEvents        bool
	PerfTelemetry       bool
	ClockSyncIntervalMs int64
	Timeframe           Timeframe
	StartupMode         StartupMode
	HistoryLimit        int
	MarketKind          MarketKind
}

// DefaultStartMarketStreamArgs returns args pre-populated with every
// DEFAULT_* constant the original session uses when a field is omitted.
func DefaultStartMarketStreamArgs() StartMarketStreamArgs {
	return StartMarketStreamArgs{
		Symbol:              DefaultSymbol,
		MinNotionalUSDT:     DefaultMinNotionalUSDT,
		EmitIntervalMs:      DefaultEmitIntervalMs,
		ClockSyncIntervalMs: DefaultClockSyncIntervalMs,
		Timeframe:           DefaultTimeframe,
		StartupMode:         DefaultStartupMode,
		HistoryLimit:        DefaultHistoryLimit,
		MarketKind:          DefaultMarketKind,
	}
}

// Config is the immutable, validated form of StartMarketStreamArgs.
type Config struct {
	Symbol              string
	MinNotionalUSDT     float64
	EmitIntervalMs      int64
	MockMode            bool
	LegacyEvents        bool
	PerfTelemetry       bool
	ClockSyncIntervalMs int64
	Timeframe           Timeframe
	StartupMode         StartupMode
	HistoryLimit        int
	MarketKind          MarketKind
}

// Normalize validates args field by field and returns an immutable Config,
// applying defaults for any field never set by the caller. Each violation
// returns an InvalidArgument AppError with a descriptive message, matching
// the normalize() contract of the session this engine implements.
func (a StartMarketStreamArgs) Normalize() (Config, error) {
	symbol := a.Symbol
	if symbol == "" {
		symbol = DefaultSymbol
	}
	symbol = strings.ToUpper(symbol)
	if symbol == "" || !isASCIIAlnum(symbol) {
		return Config{}, errs.New(errs.InvalidArgument, "symbol must be non-empty ASCII alphanumeric")
	}

	minNotional := a.MinNotionalUSDT
	if minNotional == 0 {
		minNotional = DefaultMinNotionalUSDT
	}
	if math.IsNaN(minNotional) || math.IsInf(minNotional, 0) || minNotional < 0 {
		return Config{}, errs.New(errs.InvalidArgument, "min_notional_usdt must be finite and non-negative")
	}

	emitInterval := a.EmitIntervalMs
	if emitInterval == 0 {
		emitInterval = DefaultEmitIntervalMs
	}
	if emitInterval < MinEmitIntervalMs || emitInterval > MaxEmitIntervalMs {
		return Config{}, errs.New(errs.InvalidArgument,
			fmt.Sprintf("emit_interval_ms must be between %d and %d", MinEmitIntervalMs, MaxEmitIntervalMs))
	}

	clockSyncInterval := a.ClockSyncIntervalMs
	if clockSyncInterval == 0 {
		clockSyncInterval = DefaultClockSyncIntervalMs
	}
	if clockSyncInterval < MinClockSyncIntervalMs || clockSyncInterval > MaxClockSyncIntervalMs {
		return Config{}, errs.New(errs.InvalidArgument,
			fmt.Sprintf("clock_sync_interval_ms must be between %d and %d", MinClockSyncIntervalMs, MaxClockSyncIntervalMs))
	}

	historyLimit := a.HistoryLimit
	if historyLimit == 0 {
		historyLimit = DefaultHistoryLimit
	}
	if historyLimit < MinHistoryLimit || historyLimit > MaxHistoryLimit {
		return Config{}, errs.New(errs.InvalidArgument,
			fmt.Sprintf("history_limit must be between %d and %d", MinHistoryLimit, MaxHistoryLimit))
	}

	timeframe := a.Timeframe
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	if _, err := ParseTimeframe(string(timeframe)); err != nil {
		return Config{}, err
	}

	startupMode := a.StartupMode
	if startupMode == "" {
		startupMode = DefaultStartupMode
	}
	if startupMode != StartupLiveFirst && startupMode != StartupHistoryFirst {
		return Config{}, errs.New(errs.InvalidArgument, "startup_mode must be live_first or history_first")
	}

	marketKind := a.MarketKind
	if marketKind == "" {
		marketKind = DefaultMarketKind
	}
	if _, err := ParseMarketKind(string(marketKind)); err != nil {
		return Config{}, err
	}

	return Config{
		Symbol:              symbol,
		MinNotionalUSDT:     minNotional,
		EmitIntervalMs:      emitInterval,
		MockMode:            a.MockMode,
		LegacyEvents:        a.LegacyEvents,
		PerfTelemetry:       a.PerfTelemetry,
		ClockSyncIntervalMs: clockSyncInterval,
		Timeframe:           timeframe,
		StartupMode:         startupMode,
		HistoryLimit:        historyLimit,
		MarketKind:          marketKind,
	}, nil
}

func isASCIIAlnum(s string) bool {
	for _, r := range s {
		if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
