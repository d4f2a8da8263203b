// Package gateway is an optional secondary-observer fan-out: it rebroadcasts
// the session's observer events over local WebSocket connections and an
// optional Redis pub/sub channel, for a "headless session, browser UI"
// deployment shape. It is one more Observer implementation, not a
// replacement for the core engine's single-observer contract. Grounded on
// the teacher's internal/gateway/hub.go+client.go (WS client registry,
// write-pump coalescing, Redis pub/sub fan-out), generalized from
// per-timeframe candle/indicator channels to this engine's single frame
// stream.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"aggconflate/internal/fanout"
	"aggconflate/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	clientBuf  = 256
)

// Gateway implements session.Observer. PublishFrame feeds a fanout.FanOut
// — every connected WebSocket client subscribes its own output channel and
// drains it independently, so one slow client drops frames for itself
// instead of stalling the others or the session's consumer task. Lower-
// frequency events (status, bootstrap, perf, history progress) skip the
// FanOut and write straight to each client's send buffer.
type Gateway struct {
	log    *slog.Logger
	rdb    *goredis.Client
	symbol string
	tf     model.Timeframe

	frameIn chan model.FrameUpdate
	frames  *fanout.FanOut

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New builds a Gateway. rdb may be nil, in which case only the local
// WebSocket fan-out runs and events are never published to Redis. Run must
// be started in its own goroutine to drive the frame fan-out.
func New(log *slog.Logger, rdb *goredis.Client, symbol string, tf model.Timeframe) *Gateway {
	g := &Gateway{
		log:     log,
		rdb:     rdb,
		symbol:  symbol,
		tf:      tf,
		frameIn: make(chan model.FrameUpdate, clientBuf),
		frames:  fanout.New(clientBuf),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 65536,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	return g
}

// Run drives the frame fan-out until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	g.frames.Run(ctx, g.frameIn)
}

// redisChannel mirrors the teacher's "pub:candle:<tf>:<token>" naming,
// adapted to this engine's symbol/timeframe pair.
func (g *Gateway) redisChannel() string {
	return "market:frame:" + string(g.tf) + ":" + g.symbol
}

func (g *Gateway) publishRedis(ctx context.Context, envelope []byte) {
	if g.rdb == nil {
		return
	}
	if err := g.rdb.Publish(ctx, g.redisChannel(), envelope).Err(); err != nil {
		g.log.Warn("gateway redis publish failed", "err", err)
	}
}

func (g *Gateway) broadcast(kind string, payload any) {
	envelope := mustEnvelope(g.log, kind, g.symbol, payload)
	if envelope == nil {
		return
	}

	g.publishRedis(context.Background(), envelope)

	g.mu.RLock()
	defer g.mu.RUnlock()
	for c := range g.clients {
		select {
		case c.send <- envelope:
		default:
			g.log.Warn("gateway client send buffer full, dropping message", "kind", kind)
		}
	}
}

// --- session.Observer ---

func (g *Gateway) PublishStatus(s model.StatusSnapshot) { g.broadcast("status", s) }

func (g *Gateway) PublishFrame(f model.FrameUpdate) error {
	g.publishRedis(context.Background(), mustEnvelope(g.log, "frame", g.symbol, f))
	select {
	case g.frameIn <- f:
	default:
		g.log.Warn("gateway frame fan-out input full, dropping frame")
	}
	return nil
}

func mustEnvelope(log *slog.Logger, kind, symbol string, payload any) []byte {
	envelope, err := json.Marshal(struct {
		Type   string `json:"type"`
		Symbol string `json:"symbol"`
		Data   any    `json:"data"`
	}{Type: kind, Symbol: symbol, Data: payload})
	if err != nil {
		log.Error("gateway marshal failed", "kind", kind, "err", err)
		return nil
	}
	return envelope
}

func (g *Gateway) PublishLegacyEvents(tick *model.Tick, candle *model.Candle, delta *model.DeltaCandle) {
	if tick != nil {
		g.broadcast("price_update", tick)
	}
	if candle != nil {
		g.broadcast("candle_update", candle)
	}
	if delta != nil {
		g.broadcast("delta_candle_update", delta)
	}
}

func (g *Gateway) PublishBootstrap(kind string, b model.Bootstrap) { g.broadcast("bootstrap_"+kind, b) }

func (g *Gateway) PublishPerf(p model.PerfSnapshot) { g.broadcast("perf", p) }

func (g *Gateway) PublishHistoryProgress(p model.HistoryProgress) {
	g.broadcast("history_progress", p)
}

// ServeWS upgrades an HTTP request to a WebSocket and registers the peer.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("gateway ws upgrade failed", "err", err)
		return
	}

	frames, subID := g.frames.Subscribe()
	c := &client{conn: conn, send: make(chan []byte, clientBuf), done: make(chan struct{}), subID: subID, gw: g}
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()

	g.log.Info("gateway client connected", "total", g.clientCount())

	go c.relayFrames(frames)
	go c.writePump()
	go c.readPump()
}

func (g *Gateway) removeClient(c *client) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
	g.frames.Unsubscribe(c.subID)
	close(c.send)
	close(c.done)
}

func (g *Gateway) clientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
