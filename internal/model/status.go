package model

// ConnectionState is the producer's externally-visible state machine
// position: Connecting -> Live -> (Desynced -> Reconnecting -> Live)* -> Stopped.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateLive         ConnectionState = "live"
	StateDesynced     ConnectionState = "desynced"
	StateReconnecting ConnectionState = "reconnecting"
	StateStopped      ConnectionState = "stopped"
	StateError        ConnectionState = "error"
)

// StatusSnapshot is the status-publisher's unit of work: a point-in-time
// view of connection state plus the latest telemetry fields.
type StatusSnapshot struct {
	State                    ConnectionState `json:"state"`
	Symbol                   string          `json:"symbol"`
	Timeframe                Timeframe       `json:"timeframe"`
	LastAggID                *uint64         `json:"last_agg_id,omitempty"`
	LatencyMs                *int64          `json:"latency_ms,omitempty"`
	RawExchangeLatencyMs     *int64          `json:"raw_exchange_latency_ms,omitempty"`
	ClockOffsetMs            *int64          `json:"clock_offset_ms,omitempty"`
	AdjustedNetworkLatencyMs *int64          `json:"adjusted_network_latency_ms,omitempty"`
	LocalPipelineLatencyMs   *int64          `json:"local_pipeline_latency_ms,omitempty"`
	Reason                   string          `json:"reason,omitempty"`
}

// FrameUpdate is the coalesced, fixed-cadence observer payload. Any field
// may be nil if that particular part of the state produced nothing new
// since the last drain.
type FrameUpdate struct {
	Tick                   *Tick        `json:"tick,omitempty"`
	Candle                 *Candle      `json:"candle,omitempty"`
	DeltaCandle            *DeltaCandle `json:"delta_candle,omitempty"`
	LocalPipelineLatencyMs *int64       `json:"local_pipeline_latency_ms,omitempty"`
}

// Bootstrap is the one-shot payload the history loader hands to the
// observer for each of the OHLC and signed-delta candle series.
type Bootstrap struct {
	Symbol    string      `json:"symbol"`
	Timeframe Timeframe   `json:"timeframe"`
	Candles   interface{} `json:"candles"`
}

// HistoryProgress reports paginator advancement to an optional callback.
type HistoryProgress struct {
	PagesFetched   int     `json:"pages_fetched"`
	CandlesFetched int     `json:"candles_fetched"`
	EstimatedTotal int     `json:"estimated_total"`
	ProgressPct    float64 `json:"progress_pct"`
	Done           bool    `json:"done"`
}

// PerfSnapshot is the heartbeat's optional performance-telemetry payload.
type PerfSnapshot struct {
	ParseUsP50            *float64 `json:"parse_us_p50,omitempty"`
	ParseUsP95            *float64 `json:"parse_us_p95,omitempty"`
	ParseUsP99            *float64 `json:"parse_us_p99,omitempty"`
	ApplyUsP50            *float64 `json:"apply_us_p50,omitempty"`
	ApplyUsP95            *float64 `json:"apply_us_p95,omitempty"`
	ApplyUsP99            *float64 `json:"apply_us_p99,omitempty"`
	PipelineMsP50         *float64 `json:"pipeline_ms_p50,omitempty"`
	PipelineMsP95         *float64 `json:"pipeline_ms_p95,omitempty"`
	PipelineMsP99         *float64 `json:"pipeline_ms_p99,omitempty"`
	IngestCount           uint64   `json:"ingest_count"`
	EmitCount             uint64   `json:"emit_count"`
}
