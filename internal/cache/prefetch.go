package cache

import (
	"log/slog"
	"sync"

	"chartreplay/internal/model"
	"chartreplay/internal/ringbuf"
)

// neighbors is the static adjacency table from a timeframe to the keys a
// client is most likely to request next: the next finer and next coarser
// views of the same anchor.
var neighbors = map[model.Timeframe][]model.Timeframe{
	model.TF1m:  {model.TF3m, model.TF5m},
	model.TF3m:  {model.TF1m, model.TF5m},
	model.TF5m:  {model.TF3m, model.TF15m},
	model.TF15m: {model.TF5m, model.TF30m},
	model.TF30m: {model.TF15m, model.TF1h},
	model.TF1h:  {model.TF30m, model.TF4h},
	model.TF4h:  {model.TF1h, model.TF1d},
	model.TF1d:  {model.TF4h},
}

// Prefetcher warms likely-next cache keys in the background. Foreground
// misses enqueue neighbor keys onto a bounded ring; at most one worker
// drains it, and the worker exits when the ring runs dry, to be lazily
// restarted by the next enqueue. Prefetch failures are swallowed: they must
// never surface to (or block) a foreground caller.
type Prefetcher struct {
	cache *WindowCache
	queue *ringbuf.Ring[Key]

	mu      sync.Mutex // serializes producers and the worker lifecycle flag
	running bool

	// Observability hooks, all optional.
	OnEnqueue func()
	OnExecute func()
	OnDrop    func()
}

// NewPrefetcher creates a prefetcher draining into the given cache.
func NewPrefetcher(c *WindowCache, queueSize int) *Prefetcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Prefetcher{
		cache: c,
		queue: ringbuf.New[Key](queueSize),
	}
}

// NotifyMiss enqueues the neighbor keys of a freshly missed key and ensures a
// worker is draining. Never blocks: a full queue drops the key.
func (p *Prefetcher) NotifyMiss(key Key) {
	next := neighbors[key.Timeframe]
	if len(next) == 0 {
		return
	}

	p.mu.Lock()
	for _, tf := range next {
		nk := Key{Timeframe: tf, AnchorDate: key.AnchorDate, Count: key.Count}
		if !p.queue.Push(nk) {
			if p.OnDrop != nil {
				p.OnDrop()
			}
			continue
		}
		if p.OnEnqueue != nil {
			p.OnEnqueue()
		}
	}
	if !p.running && p.queue.Len() > 0 {
		p.running = true
		go p.drain()
	}
	p.mu.Unlock()
}

// drain executes queued prefetches until the queue runs dry, then exits.
// The empty re-check happens under the lock so a concurrent enqueue either
// lands before the worker exits or observes running=false and starts a new
// one; a key is never stranded.
func (p *Prefetcher) drain() {
	for {
		key, ok := p.queue.Pop()
		if !ok {
			p.mu.Lock()
			if p.queue.Len() == 0 {
				p.running = false
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			continue
		}

		if err := p.cache.getQuiet(key); err != nil {
			// Best-effort by contract.
			slog.Debug("prefetch failed",
				slog.String("timeframe", string(key.Timeframe)),
				slog.String("anchor", key.AnchorDate),
				slog.String("error", err.Error()))
			continue
		}
		if p.OnExecute != nil {
			p.OnExecute()
		}
	}
}

// Pending returns the number of queued prefetch keys.
func (p *Prefetcher) Pending() int {
	return p.queue.Len()
}
