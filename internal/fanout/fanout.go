// Package fanout broadcasts a single stream of frame updates to N
// subscriber channels without letting a slow subscriber block the rest.
// Grounded on the teacher's internal/marketdata/bus.FanOut, generalized
// from model.Candle to model.FrameUpdate and used by internal/gateway to
// serve multiple secondary observers off one session.
package fanout

import (
	"context"
	"log"
	"sync"

	"aggconflate/internal/model"
)

// FanOut broadcasts frame updates from a single input channel to N output
// channels. If an output channel is full, the update is dropped for that
// subscriber rather than blocking the others.
type FanOut struct {
	mu      sync.RWMutex
	outputs map[int]chan model.FrameUpdate
	nextID  int
	bufSize int

	// OnDrop is called when an update is dropped for subscriber id.
	OnDrop func(subscriberID int)
}

func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize, outputs: make(map[int]chan model.FrameUpdate)}
}

// Subscribe creates a new output channel and returns it along with an id
// that must be passed to Unsubscribe once the caller is done draining it.
func (f *FanOut) Subscribe() (<-chan model.FrameUpdate, int) {
	ch := make(chan model.FrameUpdate, f.bufSize)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.outputs[id] = ch
	f.mu.Unlock()
	return ch, id
}

// Unsubscribe removes and closes the output channel for id. Safe to call
// more than once for the same id, and safe to call after Run has already
// closed every output (e.g. on shutdown).
func (f *FanOut) Unsubscribe(id int) {
	f.mu.Lock()
	ch, ok := f.outputs[id]
	if ok {
		delete(f.outputs, id)
	}
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Run reads from input and fans out to all subscribers until ctx is
// cancelled or input is closed, then closes every subscriber channel.
func (f *FanOut) Run(ctx context.Context, input <-chan model.FrameUpdate) {
	defer func() {
		f.mu.Lock()
		for id, ch := range f.outputs {
			close(ch)
			delete(f.outputs, id)
		}
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- frame:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						log.Printf("[fanout] output channel %d full, dropping frame", i)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports a subscriber channel's current length and capacity.
type ChannelStat struct {
	Len int
	Cap int
}

func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, 0, len(f.outputs))
	for _, ch := range f.outputs {
		stats = append(stats, ChannelStat{Len: len(ch), Cap: cap(ch)})
	}
	return stats
}
