// Command mdengine runs the aggTrade ingestion/conflation engine standalone:
// one session against the configured symbol/timeframe, a Prometheus
// metrics + health server, a SQLite-backed preferences/drawings store, and
// a WebSocket gateway for browser clients. Grounded on the teacher's
// cmd/mdengine orchestration shape (load config, build dependencies, wire
// signal-driven shutdown) with the Angel-One broker session replaced by
// this engine's market-data session.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"aggconflate/config"
	"aggconflate/internal/gateway"
	"aggconflate/internal/logger"
	"aggconflate/internal/metrics"
	"aggconflate/internal/model"
	"aggconflate/internal/persistence"
	"aggconflate/internal/session"
)

func main() {
	log := logger.Init("mdengine", slog.LevelInfo)
	cfg := config.Load()

	store, err := persistence.Open(cfg.DBPath())
	if err != nil {
		log.Error("failed to open persistence store", "err", err, "path", cfg.DBPath())
		os.Exit(1)
	}
	defer store.Close()

	health := metrics.NewHealthStatus()
	health.SetDBOK(true)
	_ = metrics.NewMetrics() // registers every Prometheus series on the default registry

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	var rdb *goredis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: addr})
	}

	args := config.StreamArgsFromEnv()
	streamCfg, err := args.Normalize()
	if err != nil {
		log.Error("invalid stream args", "err", err)
		os.Exit(1)
	}

	gw := gateway.New(log, rdb, streamCfg.Symbol, streamCfg.Timeframe)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go gw.Run(ctx)

	observer := healthTrackingObserver{Observer: gw, health: health}

	supervisor := session.NewSupervisor(observer, log)
	if _, err := supervisor.Start(args); err != nil {
		log.Error("failed to start session", "err", err)
		os.Exit(1)
	}
	health.SetSession(streamCfg.Symbol, string(streamCfg.Timeframe))

	httpSrv := &http.Server{Addr: gatewayAddr(), Handler: gatewayMux(gw, store)}
	go func() {
		log.Info("gateway server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway server error", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining session")

	supervisor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if rdb != nil {
		rdb.Close()
	}

	log.Info("mdengine stopped")
}

func gatewayAddr() string {
	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		return v
	}
	return ":8088"
}

func gatewayMux(gw *gateway.Gateway, store *persistence.Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	mux.Handle("/preferences", preferencesHandler{store: store})
	mux.Handle("/drawings", drawingsHandler{store: store})
	return mux
}

// healthTrackingObserver wraps the gateway observer to keep HealthStatus's
// WSConnected/LastTickTime fields current from the status/frame stream it
// already sees, without the session core needing to know about /healthz.
type healthTrackingObserver struct {
	session.Observer
	health *metrics.HealthStatus
}

func (o healthTrackingObserver) PublishStatus(s model.StatusSnapshot) {
	o.health.SetWSConnected(s.State == model.StateLive)
	o.Observer.PublishStatus(s)
}

func (o healthTrackingObserver) PublishFrame(f model.FrameUpdate) error {
	if f.Tick != nil {
		o.health.SetLastTickTime(time.Now())
	}
	return o.Observer.PublishFrame(f)
}
