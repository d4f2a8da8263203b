// Package telemetry holds the lock-free telemetry fields and the
// rolling-window performance histograms that sit beside the mutex-guarded
// conflated state, so the hot trade-apply path never contends on the
// status snapshot.
package telemetry

import "sync/atomic"

type int64Field struct {
	present atomic.Bool
	value   atomic.Int64
}

func (f *int64Field) set(v int64) {
	f.value.Store(v)
	f.present.Store(true)
}

func (f *int64Field) get() (int64, bool) {
	if !f.present.Load() {
		return 0, false
	}
	return f.value.Load(), true
}

type uint64Field struct {
	present atomic.Bool
	value   atomic.Uint64
}

func (f *uint64Field) set(v uint64) {
	f.value.Store(v)
	f.present.Store(true)
}

func (f *uint64Field) get() (uint64, bool) {
	if !f.present.Load() {
		return 0, false
	}
	return f.value.Load(), true
}

// Atomics is the lock-free snapshot the producer updates on every applied
// trade and the heartbeat/status publisher read without blocking it.
type Atomics struct {
	lastAggID                uint64Field
	rawExchangeLatencyMs     int64Field
	clockOffsetMs            int64Field
	adjustedNetworkLatencyMs int64Field
	localPipelineLatencyMs   int64Field
}

func (a *Atomics) SetLastAggID(id uint64) { a.lastAggID.set(id) }
func (a *Atomics) LastAggID() (uint64, bool) { return a.lastAggID.get() }

// SetNetworkLatencies records raw/adjusted exchange latency together with
// the clock offset used to compute the adjustment, mirroring the
// producer's single combined update per applied trade.
func (a *Atomics) SetNetworkLatencies(rawMs int64, clockOffsetMs *int64, adjustedMs int64) {
	a.rawExchangeLatencyMs.set(rawMs)
	if clockOffsetMs != nil {
		a.clockOffsetMs.set(*clockOffsetMs)
	}
	a.adjustedNetworkLatencyMs.set(adjustedMs)
}

func (a *Atomics) SetClockOffsetMs(v int64)    { a.clockOffsetMs.set(v) }
func (a *Atomics) ClockOffsetMs() (int64, bool) { return a.clockOffsetMs.get() }

func (a *Atomics) SetLocalPipelineLatencyMs(v int64) { a.localPipelineLatencyMs.set(v) }

// Snapshot is a point-in-time, non-atomic read of every field — good
// enough for status/heartbeat publication, never used on the hot path.
type Snapshot struct {
	LastAggID                *uint64
	RawExchangeLatencyMs     *int64
	ClockOffsetMs            *int64
	AdjustedNetworkLatencyMs *int64
	LocalPipelineLatencyMs   *int64
}

func (a *Atomics) Snapshot() Snapshot {
	var snap Snapshot
	if v, ok := a.lastAggID.get(); ok {
		snap.LastAggID = &v
	}
	if v, ok := a.rawExchangeLatencyMs.get(); ok {
		snap.RawExchangeLatencyMs = &v
	}
	if v, ok := a.clockOffsetMs.get(); ok {
		snap.ClockOffsetMs = &v
	}
	if v, ok := a.adjustedNetworkLatencyMs.get(); ok {
		snap.AdjustedNetworkLatencyMs = &v
	}
	if v, ok := a.localPipelineLatencyMs.get(); ok {
		snap.LocalPipelineLatencyMs = &v
	}
	return snap
}
