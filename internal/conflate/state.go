// Package conflate implements the single conflated owner of live
// aggregation state: gap-gated trade application, candle and signed-delta
// candle rollover, and fixed-cadence frame draining.
//
// A *State is guarded by its own mutex (grounded on the teacher's
// single-goroutine, mutex-protected candleState pattern in
// internal/marketdata/agg/aggregator.go) rather than an external lock, since
// Go has no async/await hazard to avoid — every method here does pure,
// sub-microsecond bookkeeping and never blocks.
package conflate

import (
	"sync"
	"time"

	"aggconflate/internal/model"
)

// OutcomeKind classifies the result of ApplyTrade.
type OutcomeKind int

const (
	Stale OutcomeKind = iota
	GapDetected
	Applied
)

// Outcome is the tagged result ApplyTrade hands back to the producer. Only
// the fields relevant to Kind are meaningful.
type Outcome struct {
	Kind     OutcomeKind
	Eligible bool   // Kind == Applied
	Expected uint64 // Kind == GapDetected
	Found    uint64 // Kind == GapDetected
}

func staleOutcome() Outcome                     { return Outcome{Kind: Stale} }
func gapOutcome(expected, found uint64) Outcome { return Outcome{Kind: GapDetected, Expected: expected, Found: found} }
func appliedOutcome(eligible bool) Outcome      { return Outcome{Kind: Applied, Eligible: eligible} }

// Drained is what DrainFrame hands to the consumer when there is something
// new to report.
type Drained struct {
	Tick                   *model.Tick
	Candle                 *model.Candle
	DeltaCandle            *model.DeltaCandle
	LocalPipelineLatencyMs *int64
}

// State is the single owner of live aggregation. Zero value is ready to use.
type State struct {
	mu sync.Mutex

	lastAggID     *uint64
	lastPrice     *float64
	lastLatencyMs int64

	hasPendingTick         bool
	pendingPrice           float64
	pendingVolume          float64
	pendingDirection       int
	pendingTimeMs          int64
	pendingIngestStartedAt *time.Time

	lastCandle    *model.Candle
	pendingCandle *model.Candle

	lastDeltaCandle    *model.DeltaCandle
	pendingDeltaCandle *model.DeltaCandle
}

// ApplyTrade gates the event on strict-monotonic sequencing, then — on
// success — rolls candles and accumulates the pending tick, exactly per
// the candle/delta-candle update rules.
func (s *State) ApplyTrade(event model.AggTradeEvent, minNotional float64, timeframe model.Timeframe, nowMs int64, ingestStartedAt time.Time) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastAggID != nil {
		if event.AggregateTradeID <= *s.lastAggID {
			return staleOutcome()
		}
		if event.AggregateTradeID != *s.lastAggID+1 {
			return gapOutcome(*s.lastAggID+1, event.AggregateTradeID)
		}
	}

	id := event.AggregateTradeID
	s.lastAggID = &id
	price := event.Price
	s.lastPrice = &price

	latency := nowMs - event.EventTimeMs
	if latency < 0 {
		latency = 0
	}
	s.lastLatencyMs = latency

	s.updateCandle(event, timeframe)
	s.updateDeltaCandle(event, timeframe)

	if s.pendingIngestStartedAt == nil {
		t := ingestStartedAt
		s.pendingIngestStartedAt = &t
	}

	if event.Notional() < minNotional {
		return appliedOutcome(false)
	}

	s.pendingVolume += event.Quantity
	s.pendingPrice = event.Price
	s.pendingDirection = event.Direction()
	s.pendingTimeMs = event.TradeTimeMs
	s.hasPendingTick = true

	return appliedOutcome(true)
}

func (s *State) updateCandle(event model.AggTradeEvent, timeframe model.Timeframe) {
	bucket := timeframe.BucketOpenTimeMs(event.TradeTimeMs)

	if s.lastCandle == nil {
		c := model.Candle{OpenTimeMs: bucket, Open: event.Price, High: event.Price, Low: event.Price, Close: event.Price, Volume: event.Quantity}
		s.lastCandle = &c
		pending := c
		s.pendingCandle = &pending
		return
	}

	switch {
	case bucket == s.lastCandle.OpenTimeMs:
		if event.Price > s.lastCandle.High {
			s.lastCandle.High = event.Price
		}
		if event.Price < s.lastCandle.Low {
			s.lastCandle.Low = event.Price
		}
		s.lastCandle.Close = event.Price
		s.lastCandle.Volume += event.Quantity
		pending := *s.lastCandle
		s.pendingCandle = &pending
	case bucket < s.lastCandle.OpenTimeMs:
		// out-of-order within an already-rolled bucket: ignore silently.
	default:
		c := model.Candle{OpenTimeMs: bucket, Open: event.Price, High: event.Price, Low: event.Price, Close: event.Price, Volume: event.Quantity}
		s.lastCandle = &c
		pending := c
		s.pendingCandle = &pending
	}
}

func (s *State) updateDeltaCandle(event model.AggTradeEvent, timeframe model.Timeframe) {
	bucket := timeframe.BucketOpenTimeMs(event.TradeTimeMs)
	signed := event.Quantity * float64(event.Direction())
	abs := event.Quantity

	if s.lastDeltaCandle == nil {
		d := model.DeltaCandle{OpenTimeMs: bucket, Open: 0, High: max0(signed), Low: min0(signed), Close: signed, Volume: abs}
		s.lastDeltaCandle = &d
		pending := d
		s.pendingDeltaCandle = &pending
		return
	}

	switch {
	case bucket == s.lastDeltaCandle.OpenTimeMs:
		s.lastDeltaCandle.Close += signed
		if s.lastDeltaCandle.Close > s.lastDeltaCandle.High {
			s.lastDeltaCandle.High = s.lastDeltaCandle.Close
		}
		if s.lastDeltaCandle.Close < s.lastDeltaCandle.Low {
			s.lastDeltaCandle.Low = s.lastDeltaCandle.Close
		}
		s.lastDeltaCandle.Volume += abs
		pending := *s.lastDeltaCandle
		s.pendingDeltaCandle = &pending
	case bucket < s.lastDeltaCandle.OpenTimeMs:
		// ignore
	default:
		d := model.DeltaCandle{OpenTimeMs: bucket, Open: 0, High: max0(signed), Low: min0(signed), Close: signed, Volume: abs}
		s.lastDeltaCandle = &d
		pending := d
		s.pendingDeltaCandle = &pending
	}
}

func max0(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func min0(v float64) float64 {
	if v < 0 {
		return v
	}
	return 0
}

// ApplySnapshot unconditionally overwrites last_agg_id and last_price and
// clears the pending tick accumulator. Candles are untouched. Used by
// snapshot resync after a gap, so it is idempotent by construction.
func (s *State) ApplySnapshot(aggID uint64, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := aggID
	s.lastAggID = &id
	p := price
	s.lastPrice = &p

	s.hasPendingTick = false
	s.pendingPrice = 0
	s.pendingVolume = 0
	s.pendingDirection = 0
	s.pendingTimeMs = 0
	s.pendingIngestStartedAt = nil
}

// DrainFrame consumes and returns the pending tick, pending candle, and
// pending delta candle, or reports that there was nothing pending.
func (s *State) DrainFrame(now time.Time) (*Drained, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasPendingTick && s.pendingCandle == nil && s.pendingDeltaCandle == nil {
		return nil, false
	}

	var latencyMs *int64
	if s.pendingIngestStartedAt != nil {
		ms := now.Sub(*s.pendingIngestStartedAt).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		latencyMs = &ms
		s.pendingIngestStartedAt = nil
	}

	out := &Drained{LocalPipelineLatencyMs: latencyMs}

	if s.hasPendingTick {
		out.Tick = &model.Tick{Price: s.pendingPrice, Volume: s.pendingVolume, Direction: s.pendingDirection, TimeMs: s.pendingTimeMs}
		s.hasPendingTick = false
		s.pendingPrice = 0
		s.pendingVolume = 0
		s.pendingDirection = 0
		s.pendingTimeMs = 0
	}

	if s.pendingCandle != nil {
		c := *s.pendingCandle
		out.Candle = &c
		s.pendingCandle = nil
	}

	if s.pendingDeltaCandle != nil {
		d := *s.pendingDeltaCandle
		out.DeltaCandle = &d
		s.pendingDeltaCandle = nil
	}

	return out, true
}

// MergeHistoryCandle applies the "never clobber newer" rule: the fetched
// candle replaces last_candle only if it is not older than whatever is
// already live.
func (s *State) MergeHistoryCandle(candle model.Candle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCandle != nil && candle.OpenTimeMs < s.lastCandle.OpenTimeMs {
		return false
	}
	c := candle
	s.lastCandle = &c
	return true
}

// MergeHistoryDeltaCandle is MergeHistoryCandle's delta-candle counterpart.
func (s *State) MergeHistoryDeltaCandle(candle model.DeltaCandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDeltaCandle != nil && candle.OpenTimeMs < s.lastDeltaCandle.OpenTimeMs {
		return false
	}
	d := candle
	s.lastDeltaCandle = &d
	return true
}

// LastAggID returns the highest applied aggregate trade id, if any.
func (s *State) LastAggID() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAggID == nil {
		return 0, false
	}
	return *s.lastAggID, true
}

// LastPrice returns the most recently applied trade price, if any.
func (s *State) LastPrice() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPrice == nil {
		return 0, false
	}
	return *s.lastPrice, true
}
