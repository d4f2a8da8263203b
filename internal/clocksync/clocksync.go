// Package clocksync implements the NTP-style clock offset estimator: a
// burst of REST probes blended toward the lowest-RTT sample, smoothed by an
// RTT-adaptive EWMA, with an adaptive next-probe delay.
package clocksync

import (
	"context"
	"sort"
	"time"

	"aggconflate/internal/telemetry"
)

const (
	ProbeCount       = 5
	ProbeSpacingMs   = 80
	MaxValidRTTMs    = 2_000
	MinDelayMs int64 = 10_000
	MaxDelayMs int64 = 90_000
)

// Probe is one RTT-timed server-time sample.
type Probe struct {
	OffsetMs int64
	RTTMs    int64
}

// ServerTimeFetcher returns the exchange's current server time in Unix
// milliseconds.
type ServerTimeFetcher func(ctx context.Context) (int64, error)

// probeOnce performs a single timed server-time fetch.
func probeOnce(ctx context.Context, fetch ServerTimeFetcher) (Probe, error) {
	t0 := time.Now().UnixMilli()
	serverMs, err := fetch(ctx)
	if err != nil {
		return Probe{}, err
	}
	t1 := time.Now().UnixMilli()

	rtt := t1 - t0
	if rtt < 0 {
		rtt = 0
	}
	localMidpoint := t0 + rtt/2
	offset := serverMs - localMidpoint

	return Probe{OffsetMs: offset, RTTMs: rtt}, nil
}

// FetchOffset runs a burst of ProbeCount probes spaced ProbeSpacingMs apart,
// discards any with RTT above MaxValidRTTMs, and blends the survivors.
// Returns false if every probe failed or was discarded.
func FetchOffset(ctx context.Context, fetch ServerTimeFetcher) (Probe, bool) {
	probes := make([]Probe, 0, ProbeCount)

	for i := 0; i < ProbeCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				break
			case <-time.After(ProbeSpacingMs * time.Millisecond):
			}
		}

		probe, err := probeOnce(ctx, fetch)
		if err != nil {
			continue
		}
		if probe.RTTMs < 0 || probe.RTTMs > MaxValidRTTMs {
			continue
		}
		probes = append(probes, probe)
	}

	if len(probes) == 0 {
		return Probe{}, false
	}

	return blend(probes), true
}

// blend sorts by RTT ascending, trusts the lowest-RTT sample most, and
// resists single-sample outliers with the median of up to the top 3.
func blend(probes []Probe) Probe {
	sorted := make([]Probe, len(probes))
	copy(sorted, probes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RTTMs < sorted[j].RTTMs })

	best := sorted[0]

	candidateCount := len(sorted)
	if candidateCount > 3 {
		candidateCount = 3
	}
	offsets := make([]int64, candidateCount)
	for i := 0; i < candidateCount; i++ {
		offsets[i] = sorted[i].OffsetMs
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	median := offsets[len(offsets)/2]

	blended := (best.OffsetMs*2 + median) / 3
	return Probe{OffsetMs: blended, RTTMs: best.RTTMs}
}

// EWMA smooths successive offset samples with an RTT-adaptive gain: tight
// links get a faster gain, noisy links get a slower one.
type EWMA struct {
	value    int64
	hasValue bool
}

// Update feeds one sample into the smoother and returns the new value.
func (e *EWMA) Update(sampleMs, rttMs int64) int64 {
	if !e.hasValue {
		e.value = sampleMs
		e.hasValue = true
		return e.value
	}

	delta := sampleMs - e.value
	if delta > 300 {
		delta = 300
	} else if delta < -300 {
		delta = -300
	}

	e.value += delta * alphaPermille(rttMs) / 1000
	return e.value
}

func (e *EWMA) Value() (int64, bool) { return e.value, e.hasValue }

func alphaPermille(rttMs int64) int64 {
	switch {
	case rttMs <= 80:
		return 280
	case rttMs <= 180:
		return 200
	case rttMs <= 350:
		return 130
	default:
		return 90
	}
}

// NextDelayMs computes the adaptive delay before the next probe burst.
func NextDelayMs(baseIntervalMs, rttMs, residualOffsetMs int64) int64 {
	base := baseIntervalMs
	if base < MinDelayMs {
		base = MinDelayMs
	}

	residual := residualOffsetMs
	if residual < 0 {
		residual = -residual
	}

	var delay int64
	switch {
	case rttMs <= 120 && residual <= 20:
		delay = base * 2
	case rttMs <= 250 && residual <= 50:
		delay = base * 3 / 2
	default:
		delay = base
	}

	if delay < MinDelayMs {
		delay = MinDelayMs
	}
	if delay > MaxDelayMs {
		delay = MaxDelayMs
	}
	return delay
}

// AdjustedNetworkLatencyMs converts a local-time latency delta into a
// server-time-corrected one, clamped to zero.
func AdjustedNetworkLatencyMs(rawExchangeLatencyMs int64, clockOffsetMs *int64) int64 {
	adjusted := rawExchangeLatencyMs
	if clockOffsetMs != nil {
		adjusted += *clockOffsetMs
	}
	if adjusted < 0 {
		adjusted = 0
	}
	return adjusted
}

// Run drives the clock-sync task until ctx is cancelled: probe, smooth,
// publish, sleep an adaptively-computed delay, repeat.
func Run(ctx context.Context, baseIntervalMs int64, fetch ServerTimeFetcher, atomics *telemetry.Atomics) {
	var ewma EWMA

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		probe, ok := FetchOffset(ctx, fetch)
		var delay int64
		if !ok {
			delay = baseIntervalMs
			if delay < MinDelayMs {
				delay = MinDelayMs
			}
		} else {
			smoothed := ewma.Update(probe.OffsetMs, probe.RTTMs)
			atomics.SetClockOffsetMs(smoothed)
			residual := probe.OffsetMs - smoothed
			delay = NextDelayMs(baseIntervalMs, probe.RTTMs, residual)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(delay) * time.Millisecond):
		}
	}
}
