package session

import (
	"context"
	"log/slog"
	"sync"

	"aggconflate/internal/binance"
	"aggconflate/internal/clocksync"
	"aggconflate/internal/conflate"
	"aggconflate/internal/model"
	"aggconflate/internal/telemetry"
)

// runner is anything driven by a single Run(ctx) goroutine until ctx is
// cancelled — Producer, MockProducer, Consumer, Heartbeat, HistoryLoader
// all satisfy it.
type runner interface {
	Run(context.Context)
}

// Supervisor owns the one active session's context-cancellation tree: it
// starts the producer (or mock producer), consumer, heartbeat, clock-sync
// and history loader around a single conflate.State, and joins all of them
// before a Stop or a subsequent Start returns. Grounded on the teacher's
// cmd/mdengine task orchestration, generalized from a fixed startup
// sequence into a restartable single-session supervisor.
type Supervisor struct {
	observer Observer
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewSupervisor(observer Observer, log *slog.Logger) *Supervisor {
	return &Supervisor{observer: observer, log: log}
}

// Start validates args, cancels and joins any previously active session,
// then installs the new one. Returns the normalized Config so the caller
// (e.g. an HTTP handler) can echo back what actually took effect.
func (s *Supervisor) Start(args model.StartMarketStreamArgs) (model.Config, error) {
	cfg, err := args.Normalize()
	if err != nil {
		return model.Config{}, err
	}

	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	state := &conflate.State{}
	atomics := &telemetry.Atomics{}
	perf := &telemetry.Perf{}
	status := newStatusPublisher(s.observer, atomics, cfg.Symbol, cfg.Timeframe)
	rest := binance.NewRestClient(cfg.MarketKind)
	history := NewHistoryLoader(cfg, state, rest, s.observer, s.log)

	spawn := func(r runner) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	startLiveTasks := func() {
		var producer runner
		if cfg.MockMode {
			producer = NewMockProducer(cfg, state, atomics, perf, status)
		} else {
			producer = NewProducer(cfg, state, atomics, perf, status, rest, s.log)
		}
		spawn(producer)
		spawn(NewConsumer(cfg, state, perf, atomics, status, s.observer, s.log))
		spawn(NewHeartbeat(cfg, perf, status, s.observer))

		if !cfg.MockMode {
			wg.Add(1)
			go func() {
				defer wg.Done()
				clocksync.Run(ctx, cfg.ClockSyncIntervalMs, rest.FetchServerTimeMs, atomics)
			}()
		}
	}

	if cfg.StartupMode == model.StartupHistoryFirst {
		wg.Add(1)
		go func() {
			defer wg.Done()
			history.Run(ctx)
			if ctx.Err() == nil {
				startLiveTasks()
			}
		}()
	} else {
		spawn(history)
		startLiveTasks()
	}

	s.mu.Lock()
	s.cancel = cancel
	s.wg = wg
	s.mu.Unlock()

	return cfg, nil
}

// Stop cancels the active session and blocks until every task it started
// has returned, then publishes a final Stopped status. Calling Stop with
// no active session is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	wg := s.wg
	s.cancel = nil
	s.wg = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	wg.Wait()
	s.observer.PublishStatus(model.StatusSnapshot{State: model.StateStopped})
}
