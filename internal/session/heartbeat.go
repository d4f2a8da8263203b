package session

import (
	"context"
	"time"

	"aggconflate/internal/model"
	"aggconflate/internal/telemetry"
)

const heartbeatInterval = 1000 * time.Millisecond

// Heartbeat republishes the latest status snapshot every second and,
// when perf telemetry is enabled, a fresh PerfSnapshot alongside it.
type Heartbeat struct {
	cfg      model.Config
	perf     *telemetry.Perf
	status   *statusPublisher
	observer Observer
}

func NewHeartbeat(cfg model.Config, perf *telemetry.Perf, status *statusPublisher, observer Observer) *Heartbeat {
	return &Heartbeat{cfg: cfg, perf: perf, status: status, observer: observer}
}

func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := h.status.Current()
			h.status.Publish(current.State, current.Reason)

			if h.cfg.PerfTelemetry {
				h.observer.PublishPerf(h.perf.Snapshot())
			}
		}
	}
}
