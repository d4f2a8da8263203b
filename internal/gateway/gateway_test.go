package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"aggconflate/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMustEnvelopeShapesTypeSymbolData(t *testing.T) {
	raw := mustEnvelope(testLogger(), "status", "BTCUSDT", model.StatusSnapshot{State: model.StateLive})
	if raw == nil {
		t.Fatal("expected a non-nil envelope")
	}

	var decoded struct {
		Type   string               `json:"type"`
		Symbol string               `json:"symbol"`
		Data   model.StatusSnapshot `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "status" || decoded.Symbol != "BTCUSDT" || decoded.Data.State != model.StateLive {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}
}

func TestGatewayPublishFrameFansOutToSubscribers(t *testing.T) {
	g := New(testLogger(), nil, "BTCUSDT", model.TF1m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	sub, _ := g.frames.Subscribe()

	price := 42.0
	if err := g.PublishFrame(model.FrameUpdate{Tick: &model.Tick{Price: price}}); err != nil {
		t.Fatalf("PublishFrame: %v", err)
	}

	select {
	case f := <-sub:
		if f.Tick == nil || f.Tick.Price != price {
			t.Fatalf("unexpected frame: %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fanned-out frame")
	}
}

func TestGatewayBroadcastDropsOnFullClientBuffer(t *testing.T) {
	g := New(testLogger(), nil, "BTCUSDT", model.TF1m)

	c := &client{send: make(chan []byte, 1), done: make(chan struct{}), gw: g}
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()

	g.broadcast("status", model.StatusSnapshot{State: model.StateLive})
	g.broadcast("status", model.StatusSnapshot{State: model.StateDesynced})

	if len(c.send) != 1 {
		t.Fatalf("expected exactly one buffered message, got %d", len(c.send))
	}
}

func TestRemoveClientClosesSendAndDoneExactlyOnce(t *testing.T) {
	g := New(testLogger(), nil, "BTCUSDT", model.TF1m)
	c := &client{send: make(chan []byte, 1), done: make(chan struct{}), gw: g}
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()

	g.removeClient(c)

	select {
	case <-c.done:
	default:
		t.Fatal("expected c.done to be closed")
	}
	if _, ok := <-c.send; ok {
		t.Fatal("expected c.send to be closed")
	}
	if g.clientCount() != 0 {
		t.Fatalf("expected client to be removed from registry, count=%d", g.clientCount())
	}
}

func TestRemoveClientUnsubscribesFromFrameFanOut(t *testing.T) {
	g := New(testLogger(), nil, "BTCUSDT", model.TF1m)

	_, subID := g.frames.Subscribe()
	c := &client{send: make(chan []byte, 1), done: make(chan struct{}), subID: subID, gw: g}
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()

	if n := len(g.frames.ChannelStats()); n != 1 {
		t.Fatalf("expected one fan-out subscriber before removal, got %d", n)
	}

	g.removeClient(c)

	if n := len(g.frames.ChannelStats()); n != 0 {
		t.Fatalf("expected the fan-out subscriber to be removed, got %d remaining", n)
	}
}
