package session

import (
	"context"
	"log/slog"
	"time"

	"aggconflate/internal/conflate"
	"aggconflate/internal/model"
	"aggconflate/internal/telemetry"
)

// Consumer drains the conflated state at a fixed tick interval and emits
// one combined frame update per tick. Missed ticks skip — there is no
// catch-up. Grounded on the teacher's single-goroutine, non-blocking
// aggregator emit loop (internal/marketdata/agg/aggregator.go), adapted
// from a 1-second OHLC rollup into a fixed-interval frame drainer.
type Consumer struct {
	cfg      model.Config
	state    *conflate.State
	perf     *telemetry.Perf
	atomics  *telemetry.Atomics
	status   *statusPublisher
	observer Observer
	log      *slog.Logger
}

func NewConsumer(cfg model.Config, state *conflate.State, perf *telemetry.Perf, atomics *telemetry.Atomics, status *statusPublisher, observer Observer, log *slog.Logger) *Consumer {
	return &Consumer{cfg: cfg, state: state, perf: perf, atomics: atomics, status: status, observer: observer, log: log}
}

func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.EmitIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Consumer) tick() {
	drained, ok := c.state.DrainFrame(time.Now())
	if !ok {
		return
	}

	frame := model.FrameUpdate{
		Tick:                   drained.Tick,
		Candle:                 drained.Candle,
		DeltaCandle:            drained.DeltaCandle,
		LocalPipelineLatencyMs: drained.LocalPipelineLatencyMs,
	}

	if err := c.observer.PublishFrame(frame); err != nil {
		c.log.Error("frame emission failed", "err", err)
		c.status.Publish(model.StateError, "frame emission failed: "+err.Error())
	} else if c.cfg.LegacyEvents {
		c.observer.PublishLegacyEvents(drained.Tick, drained.Candle, drained.DeltaCandle)
	}

	if drained.LocalPipelineLatencyMs != nil {
		c.perf.RecordEmit(*drained.LocalPipelineLatencyMs)
		c.atomics.SetLocalPipelineLatencyMs(*drained.LocalPipelineLatencyMs)
	}
}
