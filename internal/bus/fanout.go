// Package bus broadcasts engine events to N subscriber channels. Delivery is
// best-effort fan-out: a full subscriber channel drops the event for that
// subscriber only, so a slow observer can never block the engine or affect
// its peers.
package bus

import (
	"log"
	"sync"

	"chartreplay/internal/model"
)

// FanOut fans events out to subscriber channels.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Event
	bufSize int
	closed  bool

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for subscriber channels.
func New(subscriberBufferSize int) *FanOut {
	if subscriberBufferSize <= 0 {
		subscriberBufferSize = 64
	}
	return &FanOut{bufSize: subscriberBufferSize}
}

// Subscribe creates and returns a new subscriber channel.
func (f *FanOut) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Publish delivers an event to every subscriber, dropping for any whose
// buffer is full. Never blocks.
func (f *FanOut) Publish(e model.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for i, ch := range f.outputs {
		select {
		case ch <- e:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				log.Printf("[bus] subscriber %d full, dropping %s event seq=%d", i, e.Type, e.Seq)
			}
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.outputs {
		close(ch)
	}
}

// ChannelStat reports (length, capacity) for one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns the saturation of every subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
