// Package metrics exposes the engine's Prometheus counters/histograms and
// a /healthz liveness probe, grounded on the teacher's internal/metrics
// package: same NewServer(addr)/Start/Stop shape, same promhttp.Handler +
// custom health handler pairing, re-pointed at this engine's own signals
// (trade ingestion, frame emission, reconnects, resync, clock sync)
// instead of the teacher's Redis/SQLite candle-pipeline metrics.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus series the session emits.
type Metrics struct {
	TicksAppliedTotal   prometheus.Counter
	TicksStaleTotal     prometheus.Counter
	FramesEmittedTotal  prometheus.Counter
	GapsDetectedTotal   prometheus.Counter
	ResyncSuccessTotal  prometheus.Counter
	ResyncFailureTotal  prometheus.Counter
	ReconnectsTotal     prometheus.Counter
	ParseDuration       prometheus.Histogram
	ApplyDuration       prometheus.Histogram
	PipelineLatency     prometheus.Histogram
	ClockOffsetMs       prometheus.Gauge
	ClockSyncRTTMs      prometheus.Histogram
	HistoryFetchDur     prometheus.Histogram
	FanoutDropsTotal    *prometheus.CounterVec
	ConnectionState     *prometheus.GaugeVec
}

// NewMetrics registers and returns every series.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggconflate_ticks_applied_total",
			Help: "Total aggTrade events successfully applied to conflated state",
		}),
		TicksStaleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggconflate_ticks_stale_total",
			Help: "Total aggTrade events rejected as stale (id <= last_agg_id)",
		}),
		FramesEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggconflate_frames_emitted_total",
			Help: "Total coalesced frame updates emitted to the observer",
		}),
		GapsDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggconflate_gaps_detected_total",
			Help: "Total sequence gaps detected in the aggTrade stream",
		}),
		ResyncSuccessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggconflate_resync_success_total",
			Help: "Total successful snapshot resyncs after a sequence gap",
		}),
		ResyncFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggconflate_resync_failure_total",
			Help: "Total failed snapshot resync attempts",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggconflate_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		ParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggconflate_parse_duration_seconds",
			Help:    "Wire-frame decode latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggconflate_apply_duration_seconds",
			Help:    "Conflated-state apply_trade latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		PipelineLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggconflate_local_pipeline_latency_seconds",
			Help:    "Ingest-to-emission latency per drained frame",
			Buckets: prometheus.DefBuckets,
		}),
		ClockOffsetMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggconflate_clock_offset_ms",
			Help: "Current EWMA-smoothed clock offset against exchange server time",
		}),
		ClockSyncRTTMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggconflate_clock_sync_rtt_ms",
			Help:    "Round-trip time of accepted clock-sync probes",
			Buckets: []float64{10, 25, 50, 80, 120, 180, 250, 350, 500, 1000, 2000},
		}),
		HistoryFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggconflate_history_fetch_duration_seconds",
			Help:    "Wall time of a full history-loader kline fetch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggconflate_fanout_drops_total",
			Help: "Events dropped by a non-blocking fan-out subscriber",
		}, []string{"subscriber"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aggconflate_connection_state",
			Help: "1 if the session is currently in the named connection state, else 0",
		}, []string{"state"}),
	}

	prometheus.MustRegister(
		m.TicksAppliedTotal,
		m.TicksStaleTotal,
		m.FramesEmittedTotal,
		m.GapsDetectedTotal,
		m.ResyncSuccessTotal,
		m.ResyncFailureTotal,
		m.ReconnectsTotal,
		m.ParseDuration,
		m.ApplyDuration,
		m.PipelineLatency,
		m.ClockOffsetMs,
		m.ClockSyncRTTMs,
		m.HistoryFetchDur,
		m.FanoutDropsTotal,
		m.ConnectionState,
	)

	return m
}

// SetConnectionState zeroes every other known state's gauge and sets only
// the current one to 1, so a Grafana panel can chart state as a step line.
func (m *Metrics) SetConnectionState(states []string, current string) {
	for _, s := range states {
		if s == current {
			m.ConnectionState.WithLabelValues(s).Set(1)
		} else {
			m.ConnectionState.WithLabelValues(s).Set(0)
		}
	}
}

// HealthStatus is the liveness probe's mutable state.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected  bool      `json:"ws_connected"`
	LastTickTime time.Time `json:"last_tick_time"`
	DBOK         bool      `json:"db_ok"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	StartedAt    time.Time `json:"started_at"`
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetDBOK(v bool) {
	h.mu.Lock()
	h.DBOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSession(symbol, timeframe string) {
	h.mu.Lock()
	h.Symbol = symbol
	h.Timeframe = timeframe
	h.mu.Unlock()
}

func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.WSConnected || !h.DBOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status       string `json:"status"`
		Uptime       string `json:"uptime"`
		WSConnected  bool   `json:"ws_connected"`
		LastTickTime string `json:"last_tick_time"`
		TickAge      string `json:"tick_age"`
		DBOK         bool   `json:"db_ok"`
		Symbol       string `json:"symbol"`
		Timeframe    string `json:"timeframe"`
	}{
		Status:       overallStatus,
		Uptime:       time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:  h.WSConnected,
		LastTickTime: h.LastTickTime.Format(time.RFC3339),
		TickAge:      tickAge,
		DBOK:         h.DBOK,
		Symbol:       h.Symbol,
		Timeframe:    h.Timeframe,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
