package fanout

import (
	"context"
	"testing"
	"time"

	"aggconflate/internal/model"
)

func TestFanOutBroadcastsToAllSubscribers(t *testing.T) {
	fo := New(10)
	out1, _ := fo.Subscribe()
	out2, _ := fo.Subscribe()

	input := make(chan model.FrameUpdate, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	price := 101.5
	input <- model.FrameUpdate{Tick: &model.Tick{Price: price}}

	select {
	case f := <-out1:
		if f.Tick == nil || f.Tick.Price != price {
			t.Fatalf("out1: unexpected frame %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for frame")
	}

	select {
	case f := <-out2:
		if f.Tick == nil || f.Tick.Price != price {
			t.Fatalf("out2: unexpected frame %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for frame")
	}
}

func TestFanOutDropsWhenSubscriberBufferIsFull(t *testing.T) {
	fo := New(1)
	out, _ := fo.Subscribe()

	var drops int
	fo.OnDrop = func(subscriberID int) { drops++ }

	input := make(chan model.FrameUpdate, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.FrameUpdate{Tick: &model.Tick{Price: 1}}
	input <- model.FrameUpdate{Tick: &model.Tick{Price: 2}}
	input <- model.FrameUpdate{Tick: &model.Tick{Price: 3}}
	time.Sleep(50 * time.Millisecond)

	if drops == 0 {
		t.Fatal("expected at least one drop when subscriber buffer overflows")
	}
	<-out
}

func TestUnsubscribeClosesTheOutputAndStopsFurtherDelivery(t *testing.T) {
	fo := New(10)
	out1, id1 := fo.Subscribe()
	out2, _ := fo.Subscribe()

	input := make(chan model.FrameUpdate, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	fo.Unsubscribe(id1)

	if _, ok := <-out1; ok {
		t.Fatal("expected out1 to be closed after Unsubscribe")
	}

	input <- model.FrameUpdate{Tick: &model.Tick{Price: 7}}
	select {
	case f := <-out2:
		if f.Tick == nil || f.Tick.Price != 7 {
			t.Fatalf("out2: unexpected frame %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for frame after unrelated unsubscribe")
	}

	if stats := fo.ChannelStats(); len(stats) != 1 {
		t.Fatalf("expected exactly one remaining subscriber, got %d", len(stats))
	}
}
