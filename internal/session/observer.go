// Package session wires the five cooperating tasks — producer, consumer,
// heartbeat, clock-sync, history loader — around one conflated state,
// grounded on the teacher's cmd/mdengine orchestration and context-tree
// cancellation pattern.
package session

import (
	"log/slog"

	"aggconflate/internal/model"
)

// Observer is the fire-and-forget event sink every task publishes to. A
// production host wires this to its UI bridge; tests wire it to a
// recording double.
type Observer interface {
	PublishStatus(model.StatusSnapshot)
	// PublishFrame returns an error when the emission could not be
	// delivered (e.g. a full/closed event channel) so the consumer can
	// surface a one-shot error status without retrying the frame.
	PublishFrame(model.FrameUpdate) error
	PublishLegacyEvents(tick *model.Tick, candle *model.Candle, delta *model.DeltaCandle)
	PublishBootstrap(kind string, b model.Bootstrap)
	PublishPerf(model.PerfSnapshot)
	PublishHistoryProgress(model.HistoryProgress)
}

// LoggingObserver is the default Observer: every event is logged at debug
// level and otherwise dropped. Hosts that need a real UI bridge wrap or
// replace it; it exists so the engine is runnable standalone.
type LoggingObserver struct {
	Log *slog.Logger
}

func (o LoggingObserver) PublishStatus(s model.StatusSnapshot) {
	o.Log.Debug("market_status", "state", s.State, "reason", s.Reason)
}

func (o LoggingObserver) PublishFrame(f model.FrameUpdate) error {
	o.Log.Debug("market_frame_update", "has_tick", f.Tick != nil, "has_candle", f.Candle != nil)
	return nil
}

func (o LoggingObserver) PublishLegacyEvents(tick *model.Tick, candle *model.Candle, delta *model.DeltaCandle) {
	if tick != nil {
		o.Log.Debug("price_update", "price", tick.Price)
	}
	if candle != nil {
		o.Log.Debug("candle_update", "open_time_ms", candle.OpenTimeMs)
	}
	if delta != nil {
		o.Log.Debug("delta_candle_update", "open_time_ms", delta.OpenTimeMs)
	}
}

func (o LoggingObserver) PublishBootstrap(kind string, b model.Bootstrap) {
	o.Log.Debug("bootstrap", "kind", kind, "symbol", b.Symbol, "timeframe", b.Timeframe)
}

func (o LoggingObserver) PublishPerf(p model.PerfSnapshot) {
	o.Log.Debug("market_perf", "ingest_count", p.IngestCount, "emit_count", p.EmitCount)
}

func (o LoggingObserver) PublishHistoryProgress(p model.HistoryProgress) {
	o.Log.Debug("history_load_progress", "pages", p.PagesFetched, "done", p.Done)
}
