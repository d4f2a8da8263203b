package session

import (
	"sync"
	"time"

	"aggconflate/internal/model"
	"aggconflate/internal/telemetry"
)

// statusThrottleWindow is the minimum spacing between two published
// Error/Reconnecting status messages that carry the same reason.
const statusThrottleWindow = 500 * time.Millisecond

// statusPublisher centralizes status construction: current connection
// state + symbol/timeframe + a fresh telemetry snapshot, written under a
// lock, throttled for noisy Error/Reconnecting repeats, then fanned out.
type statusPublisher struct {
	mu       sync.RWMutex
	current  model.StatusSnapshot
	atomics  *telemetry.Atomics
	observer Observer
	symbol   string
	timeframe model.Timeframe

	lastThrottleKey string
	lastThrottleAt  time.Time
}

func newStatusPublisher(observer Observer, atomics *telemetry.Atomics, symbol string, timeframe model.Timeframe) *statusPublisher {
	return &statusPublisher{observer: observer, atomics: atomics, symbol: symbol, timeframe: timeframe}
}

// Publish builds and fans out a status snapshot. Error/Reconnecting
// messages with a reason identical to the last one published within
// statusThrottleWindow are dropped.
func (p *statusPublisher) Publish(state model.ConnectionState, reason string) {
	if p.throttled(state, reason) {
		return
	}

	snap := p.atomics.Snapshot()
	status := model.StatusSnapshot{
		State:                    state,
		Symbol:                   p.symbol,
		Timeframe:                p.timeframe,
		LastAggID:                snap.LastAggID,
		RawExchangeLatencyMs:     snap.RawExchangeLatencyMs,
		ClockOffsetMs:            snap.ClockOffsetMs,
		AdjustedNetworkLatencyMs: snap.AdjustedNetworkLatencyMs,
		LocalPipelineLatencyMs:   snap.LocalPipelineLatencyMs,
		Reason:                   reason,
	}
	if status.AdjustedNetworkLatencyMs != nil {
		status.LatencyMs = status.AdjustedNetworkLatencyMs
	}

	p.mu.Lock()
	p.current = status
	p.mu.Unlock()

	p.observer.PublishStatus(status)
}

// Current returns the last-published snapshot, read without blocking a
// concurrent Publish for long.
func (p *statusPublisher) Current() model.StatusSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *statusPublisher) throttled(state model.ConnectionState, reason string) bool {
	if state != model.StateError && state != model.StateReconnecting {
		return false
	}

	key := string(state) + "|" + reason
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if key == p.lastThrottleKey && now.Sub(p.lastThrottleAt) < statusThrottleWindow {
		return true
	}
	p.lastThrottleKey = key
	p.lastThrottleAt = now
	return false
}
