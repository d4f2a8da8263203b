package telemetry

import "testing"

func TestPercentileEmptyWindow(t *testing.T) {
	var w rollingWindow
	if _, ok := w.percentile(50); ok {
		t.Fatalf("empty window should report no percentile")
	}
}

func TestPercentileIndexFormula(t *testing.T) {
	var w rollingWindow
	for i := 1; i <= 10; i++ {
		w.push(float64(i))
	}
	// sorted = [1..10], idx = floor((10-1)*50/100) = 4 -> value 5
	v, ok := w.percentile(50)
	if !ok || v != 5 {
		t.Fatalf("want p50=5, got %v ok=%v", v, ok)
	}
	// idx = floor(9*99/100) = 8 -> value 9
	v, ok = w.percentile(99)
	if !ok || v != 9 {
		t.Fatalf("want p99=9, got %v ok=%v", v, ok)
	}
}

func TestRollingWindowOverwritesOldestPastCapacity(t *testing.T) {
	var w rollingWindow
	for i := 0; i < windowCapacity+100; i++ {
		w.push(float64(i))
	}
	if w.count != windowCapacity {
		t.Fatalf("want count capped at %d, got %d", windowCapacity, w.count)
	}
	// the 100 oldest samples (0..99) should have been evicted.
	for _, s := range w.samples {
		if s < 100 {
			t.Fatalf("expected oldest samples evicted, found %v still present", s)
		}
	}
}

func TestPerfSnapshotCounters(t *testing.T) {
	var p Perf
	p.RecordIngest(10, 20)
	p.RecordIngest(30, 40)
	p.RecordEmit(5)

	snap := p.Snapshot()
	if snap.IngestCount != 2 || snap.EmitCount != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.ParseUsP50 == nil || snap.ApplyUsP50 == nil || snap.PipelineMsP50 == nil {
		t.Fatalf("expected percentiles to be populated: %+v", snap)
	}
}
