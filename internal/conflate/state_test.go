package conflate

import (
	"testing"
	"time"

	"aggconflate/internal/model"
)

func sampleTrade(id uint64, tradeTimeMs int64, price, qty float64, isBuyerMaker bool) model.AggTradeEvent {
	return model.AggTradeEvent{
		EventTimeMs:      tradeTimeMs,
		TradeTimeMs:      tradeTimeMs,
		AggregateTradeID: id,
		Price:            price,
		Quantity:         qty,
		IsBuyerMaker:     isBuyerMaker,
	}
}

func TestDetectsSequenceGap(t *testing.T) {
	var s State
	first := sampleTrade(10, 60_000, 100, 1, false)
	second := sampleTrade(12, 60_100, 101, 2, true)

	out := s.ApplyTrade(first, 10, model.TF1m, 2_000, time.Now())
	if out.Kind != Applied || !out.Eligible {
		t.Fatalf("first trade: want Applied{eligible=true}, got %+v", out)
	}

	out = s.ApplyTrade(second, 10, model.TF1m, 2_000, time.Now())
	if out.Kind != GapDetected || out.Expected != 11 || out.Found != 12 {
		t.Fatalf("second trade: want GapDetected{11,12}, got %+v", out)
	}

	id, ok := s.LastAggID()
	if !ok || id != 10 {
		t.Fatalf("last_agg_id should remain 10 after gap, got %v ok=%v", id, ok)
	}
	price, _ := s.LastPrice()
	if price != 100 {
		t.Fatalf("last_price should remain 100 after gap, got %v", price)
	}
}

func TestFiltersNoiseByNotionalWithoutLosingState(t *testing.T) {
	var s State
	trade := sampleTrade(1, 60_000, 20, 1, false)

	out := s.ApplyTrade(trade, 100, model.TF1m, 2_000, time.Now())
	if out.Kind != Applied || out.Eligible {
		t.Fatalf("want Applied{eligible=false}, got %+v", out)
	}

	id, _ := s.LastAggID()
	price, _ := s.LastPrice()
	if id != 1 || price != 20 {
		t.Fatalf("last_agg_id/last_price should still update: id=%v price=%v", id, price)
	}

	drained, ok := s.DrainFrame(time.Now())
	if ok && drained.Tick != nil {
		t.Fatalf("no eligible trade was applied, tick should be absent: %+v", drained)
	}
}

func TestConflatesVolumeAndKeepsLatestPriceDirection(t *testing.T) {
	var s State
	buy := sampleTrade(1, 60_000, 100, 0.4, false)
	sell := sampleTrade(2, 60_010, 101, 0.6, true)

	s.ApplyTrade(buy, 1, model.TF1m, 2_000, time.Now())
	s.ApplyTrade(sell, 1, model.TF1m, 2_010, time.Now())

	drained, ok := s.DrainFrame(time.Now())
	if !ok || drained.Tick == nil {
		t.Fatalf("expected a drained tick")
	}
	tick := drained.Tick
	if tick.Price != 101 || tick.Direction != -1 {
		t.Fatalf("want price=101 direction=-1, got %+v", tick)
	}
	if diff := tick.Volume - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("want volume=1.0, got %v", tick.Volume)
	}
}

func TestUpdatesSameCandleInsideSingleBucket(t *testing.T) {
	var s State
	first := sampleTrade(1, 60_100, 100, 0.2, false)
	second := sampleTrade(2, 60_900, 101, 0.4, false)

	s.ApplyTrade(first, 1, model.TF1m, 60_100, time.Now())
	s.ApplyTrade(second, 1, model.TF1m, 60_900, time.Now())

	drained, ok := s.DrainFrame(time.Now())
	if !ok || drained.Candle == nil {
		t.Fatalf("expected a drained candle")
	}
	c := drained.Candle
	if c.OpenTimeMs != 60_000 || c.Open != 100 || c.High != 101 || c.Low != 100 || c.Close != 101 {
		t.Fatalf("unexpected candle: %+v", c)
	}
	if diff := c.Volume - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("want volume=0.6, got %v", c.Volume)
	}
}

func TestOpensNewCandleWhenBucketChanges(t *testing.T) {
	var s State
	first := sampleTrade(1, 60_100, 100, 0.2, false)
	second := sampleTrade(2, 120_050, 102, 0.5, false)

	s.ApplyTrade(first, 1, model.TF1m, 60_100, time.Now())
	s.ApplyTrade(second, 1, model.TF1m, 120_050, time.Now())

	drained, ok := s.DrainFrame(time.Now())
	if !ok || drained.Candle == nil {
		t.Fatalf("expected a drained candle")
	}
	c := drained.Candle
	if c.OpenTimeMs != 120_000 || c.Open != 102 || c.Close != 102 {
		t.Fatalf("unexpected candle: %+v", c)
	}
}

func TestBurstConflationEmitsSingleTickSnapshot(t *testing.T) {
	var s State
	for id := uint64(1); id <= 100; id++ {
		trade := sampleTrade(id, 60_000, 100+float64(id), 0.1, false)
		s.ApplyTrade(trade, 1, model.TF1m, 3_000, time.Now())
	}

	drained, ok := s.DrainFrame(time.Now())
	if !ok || drained.Tick == nil {
		t.Fatalf("expected a single conflated tick")
	}
	if drained.Tick.Price != 200 || drained.Tick.Direction != 1 {
		t.Fatalf("unexpected tick: %+v", drained.Tick)
	}
	if diff := drained.Tick.Volume - 10.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("want volume=10.0, got %v", drained.Tick.Volume)
	}

	if _, ok := s.DrainFrame(time.Now()); ok {
		t.Fatalf("second drain should return nothing new")
	}
}

func TestApplySnapshotWithoutResettingExistingCandle(t *testing.T) {
	var s State
	trade := sampleTrade(7, 60_100, 100, 1, false)
	s.ApplyTrade(trade, 1, model.TF1m, 60_100, time.Now())

	s.ApplySnapshot(100, 500)

	id, _ := s.LastAggID()
	price, _ := s.LastPrice()
	if id != 100 || price != 500 {
		t.Fatalf("want id=100 price=500, got id=%v price=%v", id, price)
	}
	if s.lastCandle == nil {
		t.Fatalf("snapshot must not clear the existing candle")
	}
}

func TestDrainFrameReturnsNoneWhenNothingPending(t *testing.T) {
	var s State
	if _, ok := s.DrainFrame(time.Now()); ok {
		t.Fatalf("fresh state should have nothing to drain")
	}
}

func TestFirstWinsPendingIngestStartedAt(t *testing.T) {
	var s State
	first := time.Now()
	later := first.Add(50 * time.Millisecond)

	s.ApplyTrade(sampleTrade(1, 60_000, 100, 1, false), 1, model.TF1m, 60_000, first)
	s.ApplyTrade(sampleTrade(2, 60_010, 101, 1, false), 1, model.TF1m, 60_010, later)

	if s.pendingIngestStartedAt == nil || !s.pendingIngestStartedAt.Equal(first) {
		t.Fatalf("pending_ingest_started_at should keep the first instant within the frame")
	}
}

func TestStaleAndGapLeaveStateBitIdentical(t *testing.T) {
	var s State
	s.ApplyTrade(sampleTrade(5, 60_000, 100, 1, false), 1, model.TF1m, 60_000, time.Now())

	beforeID, _ := s.LastAggID()
	beforePrice, _ := s.LastPrice()

	s.ApplyTrade(sampleTrade(5, 60_000, 999, 1, false), 1, model.TF1m, 60_000, time.Now())
	s.ApplyTrade(sampleTrade(9, 60_000, 999, 1, false), 1, model.TF1m, 60_000, time.Now())

	afterID, _ := s.LastAggID()
	afterPrice, _ := s.LastPrice()
	if beforeID != afterID || beforePrice != afterPrice {
		t.Fatalf("stale/gap applies must not mutate state: before=(%v,%v) after=(%v,%v)", beforeID, beforePrice, afterID, afterPrice)
	}
}
