package session

import (
	"context"
	"time"

	"aggconflate/internal/conflate"
	"aggconflate/internal/model"
	"aggconflate/internal/telemetry"
)

const mockTickInterval = 4 * time.Millisecond // ~250 Hz

// MockProducer bypasses the real WebSocket and drives apply_trade with a
// deterministic synthetic price walk, for staging/demo use. Grounded on
// the teacher's internal/marketdata/wssim simulated-ingest mode: same
// "bypass transport, drive the same apply path" shape.
type MockProducer struct {
	cfg     model.Config
	state   *conflate.State
	atomics *telemetry.Atomics
	perf    *telemetry.Perf
	status  *statusPublisher
}

func NewMockProducer(cfg model.Config, state *conflate.State, atomics *telemetry.Atomics, perf *telemetry.Perf, status *statusPublisher) *MockProducer {
	return &MockProducer{cfg: cfg, state: state, atomics: atomics, perf: perf, status: status}
}

func (m *MockProducer) Run(ctx context.Context) {
	m.status.Publish(model.StateLive, "mock mode")

	ticker := time.NewTicker(mockTickInterval)
	defer ticker.Stop()

	price := 100.0
	var id uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id++
			if id%2 == 1 {
				price += 0.6
			} else {
				price -= 0.4
			}
			qty := 0.12 + float64(id%5)*0.01
			isBuyerMaker := id%2 == 0

			now := time.Now()
			nowMs := now.UnixMilli()
			event := model.AggTradeEvent{
				EventTimeMs:      nowMs,
				TradeTimeMs:      nowMs,
				AggregateTradeID: id,
				Price:            price,
				Quantity:         qty,
				IsBuyerMaker:     isBuyerMaker,
			}

			parseStart := time.Now()
			parseUs := time.Since(parseStart).Microseconds()

			applyStart := time.Now()
			outcome := m.state.ApplyTrade(event, m.cfg.MinNotionalUSDT, m.cfg.Timeframe, nowMs, now)
			applyUs := time.Since(applyStart).Microseconds()

			m.perf.RecordIngest(uint32(clampUint32(parseUs)), uint32(clampUint32(applyUs)))

			if outcome.Kind == conflate.Applied {
				m.atomics.SetLastAggID(id)
				m.atomics.SetNetworkLatencies(0, nil, 0)
			}
		}
	}
}
