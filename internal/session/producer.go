package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"aggconflate/internal/binance"
	"aggconflate/internal/clocksync"
	"aggconflate/internal/codec"
	"aggconflate/internal/conflate"
	"aggconflate/internal/model"
	"aggconflate/internal/telemetry"
)

// Producer owns the WebSocket connection lifecycle: Connecting -> Live ->
// (Desynced -> Reconnecting -> Live)* -> Stopped. Grounded on the teacher's
// pkg/smartconnect dial/reconnect-loop shape, generalized from Angel-One
// binary frames to Binance's aggTrade JSON frames.
type Producer struct {
	cfg     model.Config
	state   *conflate.State
	atomics *telemetry.Atomics
	perf    *telemetry.Perf
	status  *statusPublisher
	rest    *binance.RestClient
	log     *slog.Logger
}

func NewProducer(cfg model.Config, state *conflate.State, atomics *telemetry.Atomics, perf *telemetry.Perf, status *statusPublisher, rest *binance.RestClient, log *slog.Logger) *Producer {
	return &Producer{cfg: cfg, state: state, atomics: atomics, perf: perf, status: status, rest: rest, log: log}
}

// Run drives the reconnect loop until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		p.status.Publish(model.StateConnecting, "")
		conn, err := binance.ConnectAggTradeStream(ctx, p.cfg.MarketKind, p.cfg.Symbol)
		if err != nil {
			p.status.Publish(model.StateReconnecting, "dial failed: "+err.Error())
			if !p.sleep(ctx, reconnectDelay(attempt)) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		p.status.Publish(model.StateLive, "connected")

		gapDetected := p.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		if gapDetected {
			if !p.resync(ctx) {
				return
			}
			// Immediate reconnect after a clean resync — intentionally
			// asymmetric with the backoff path.
			continue
		}

		p.status.Publish(model.StateReconnecting, "connection lost")
		if !p.sleep(ctx, reconnectDelay(attempt)) {
			return
		}
		attempt++
	}
}

// readLoop reads frames until the socket closes, errors, or a gap is
// detected. Returns true only when a gap triggered early exit.
func (p *Producer) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return false
			}
			if ctx.Err() == nil {
				p.log.Warn("aggTrade read error", "err", err)
			}
			return false
		}

		parseStart := time.Now()
		event, err := codec.DecodeAggTrade(frame)
		parseUs := time.Since(parseStart).Microseconds()
		if err != nil {
			p.status.Publish(model.StateError, "decode error: "+err.Error())
			continue
		}

		applyStart := time.Now()
		ingestInstant := time.Now()
		outcome := p.state.ApplyTrade(event, p.cfg.MinNotionalUSDT, p.cfg.Timeframe, nowUnixMs(), ingestInstant)
		applyUs := time.Since(applyStart).Microseconds()

		p.perf.RecordIngest(uint32(clampUint32(parseUs)), uint32(clampUint32(applyUs)))

		switch outcome.Kind {
		case conflate.Stale:
			continue
		case conflate.GapDetected:
			p.status.Publish(model.StateDesynced,
				fmt.Sprintf("sequence gap: expected %d found %d", outcome.Expected, outcome.Found))
			return true
		case conflate.Applied:
			p.recordLatency(event)
		}
	}
}

func (p *Producer) recordLatency(event model.AggTradeEvent) {
	p.atomics.SetLastAggID(event.AggregateTradeID)

	raw := nowUnixMs() - event.EventTimeMs

	var offsetPtr *int64
	if v, ok := p.atomics.ClockOffsetMs(); ok {
		offsetPtr = &v
	}
	adjusted := clocksync.AdjustedNetworkLatencyMs(raw, offsetPtr)

	p.atomics.SetNetworkLatencies(raw, offsetPtr, adjusted)
}

// resync fetches the latest exchange snapshot and retries on failure with
// backoff until it succeeds or ctx is cancelled.
func (p *Producer) resync(ctx context.Context) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}

		aggID, price, err := p.rest.FetchLatestAggTradeSnapshot(ctx, p.cfg.Symbol)
		if err != nil {
			p.status.Publish(model.StateReconnecting, "resync failed: "+err.Error())
			if !p.sleep(ctx, reconnectDelay(attempt)) {
				return false
			}
			attempt++
			continue
		}

		p.state.ApplySnapshot(aggID, price)
		p.status.Publish(model.StateLive, "snapshot resync completed")
		return true
	}
}

func (p *Producer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nowUnixMs() int64 { return time.Now().UnixMilli() }

func clampUint32(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return v
}

