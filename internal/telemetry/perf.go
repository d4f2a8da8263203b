package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"

	"aggconflate/internal/model"
)

const windowCapacity = 2048

// rollingWindow is a fixed-capacity circular buffer of samples. Its
// percentile lookup sorts a snapshot copy rather than maintaining a sorted
// structure incrementally — the window is small and percentiles are only
// computed once per heartbeat tick, not on the hot ingest path.
//
// Grounded on the teacher's internal/ringbuf package for the fixed-capacity,
// overwrite-oldest shape; reimplemented over a plain slice because the
// percentile rule needs a sortable snapshot, not a lock-free SPSC push/pop.
type rollingWindow struct {
	samples [windowCapacity]float64
	next    int
	count   int
}

func (w *rollingWindow) push(v float64) {
	w.samples[w.next] = v
	w.next = (w.next + 1) % windowCapacity
	if w.count < windowCapacity {
		w.count++
	}
}

// percentile returns the element at floor((len-1) * p / 100) of the sorted
// sample set, or false if the window is empty.
func (w *rollingWindow) percentile(p int) (float64, bool) {
	if w.count == 0 {
		return 0, false
	}
	sorted := make([]float64, w.count)
	copy(sorted, w.samples[:w.count])
	sort.Float64s(sorted)
	idx := ((w.count - 1) * p) / 100
	return sorted[idx], true
}

// Perf is the mutex-guarded rolling-window performance telemetry shared by
// the producer (records parse/apply timings) and the consumer (records
// pipeline latency), summarized by the heartbeat into a PerfSnapshot.
type Perf struct {
	mu         sync.Mutex
	parseUs    rollingWindow
	applyUs    rollingWindow
	pipelineMs rollingWindow

	ingestCount atomic.Uint64
	emitCount   atomic.Uint64
}

// RecordIngest logs one wire-frame's parse and apply timings, in
// microseconds.
func (p *Perf) RecordIngest(parseUs, applyUs uint32) {
	p.mu.Lock()
	p.parseUs.push(float64(parseUs))
	p.applyUs.push(float64(applyUs))
	p.mu.Unlock()
	p.ingestCount.Add(1)
}

// RecordEmit logs one frame's local pipeline latency, in milliseconds.
func (p *Perf) RecordEmit(pipelineMs int64) {
	p.mu.Lock()
	p.pipelineMs.push(float64(pipelineMs))
	p.mu.Unlock()
	p.emitCount.Add(1)
}

// Snapshot composes p50/p95/p99 percentiles plus monotonic counters into
// the observer-facing perf payload.
func (p *Perf) Snapshot() model.PerfSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := model.PerfSnapshot{
		IngestCount: p.ingestCount.Load(),
		EmitCount:   p.emitCount.Load(),
	}

	if v, ok := p.parseUs.percentile(50); ok {
		snap.ParseUsP50 = f64ptr(v)
	}
	if v, ok := p.parseUs.percentile(95); ok {
		snap.ParseUsP95 = f64ptr(v)
	}
	if v, ok := p.parseUs.percentile(99); ok {
		snap.ParseUsP99 = f64ptr(v)
	}
	if v, ok := p.applyUs.percentile(50); ok {
		snap.ApplyUsP50 = f64ptr(v)
	}
	if v, ok := p.applyUs.percentile(95); ok {
		snap.ApplyUsP95 = f64ptr(v)
	}
	if v, ok := p.applyUs.percentile(99); ok {
		snap.ApplyUsP99 = f64ptr(v)
	}
	if v, ok := p.pipelineMs.percentile(50); ok {
		snap.PipelineMsP50 = f64ptr(v)
	}
	if v, ok := p.pipelineMs.percentile(95); ok {
		snap.PipelineMsP95 = f64ptr(v)
	}
	if v, ok := p.pipelineMs.percentile(99); ok {
		snap.PipelineMsP99 = f64ptr(v)
	}

	return snap
}

func f64ptr(v float64) *float64 { return &v }
