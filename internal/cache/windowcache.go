// Package cache materializes aggregated timeframe windows on demand and
// keeps them in an LRU cache keyed by (timeframe, anchor, count). Eviction is
// by entry count, not bytes: a candle's footprint is near-constant, so entry
// count tracks memory closely enough.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"chartreplay/internal/agg"
	"chartreplay/internal/model"
	"chartreplay/internal/series"
)

// Key identifies one materialized window.
type Key struct {
	Timeframe  model.Timeframe
	AnchorDate string
	Count      int
}

type entry struct {
	key    Key
	window *model.TimeframeWindow
}

// WindowCache is the LRU of materialized windows. Hits promote the entry to
// most-recently-used; a miss computes the window from the master series,
// inserts it, and evicts the least-recently-used entry when over capacity.
//
// Lookups take a read lock so concurrent hits do not serialize on each other;
// promotion and insertion take the write lock. Correctness (no two goroutines
// evicting concurrently) wins over raw throughput.
type WindowCache struct {
	store    *series.Store
	capacity int

	mu      sync.RWMutex
	entries map[Key]*list.Element
	order   *list.List // front = most recently used

	prefetcher *Prefetcher // optional, notified on foreground misses

	// Observability hooks, all optional.
	OnHit   func()
	OnMiss  func()
	OnEvict func()
}

// New creates a WindowCache over the given master series.
func New(store *series.Store, capacity int) *WindowCache {
	if capacity <= 0 {
		capacity = 64
	}
	return &WindowCache{
		store:    store,
		capacity: capacity,
		entries:  make(map[Key]*list.Element, capacity),
		order:    list.New(),
	}
}

// SetPrefetcher wires the background prefetcher. Must be called before the
// cache is shared across goroutines.
func (c *WindowCache) SetPrefetcher(p *Prefetcher) {
	c.prefetcher = p
}

// Get returns the window for (tf, anchorDate, count) and whether it was
// served from cache. On a miss the window is computed, inserted, and likely
// neighbor keys are handed to the prefetcher.
func (c *WindowCache) Get(tf model.Timeframe, anchorDate string, count int) (*model.TimeframeWindow, bool, error) {
	key := Key{Timeframe: tf, AnchorDate: anchorDate, Count: count}

	if w := c.lookup(key); w != nil {
		if c.OnHit != nil {
			c.OnHit()
		}
		return w, true, nil
	}

	w, err := c.build(key)
	if err != nil {
		return nil, false, err
	}
	c.insert(key, w)

	if c.OnMiss != nil {
		c.OnMiss()
	}
	if c.prefetcher != nil {
		c.prefetcher.NotifyMiss(key)
	}
	return w, false, nil
}

// getQuiet is the prefetch path: same compute-and-insert, but it never
// notifies the prefetcher (no cascading) and never counts as a foreground
// hit or miss.
func (c *WindowCache) getQuiet(key Key) error {
	if w := c.lookup(key); w != nil {
		return nil
	}
	w, err := c.build(key)
	if err != nil {
		return err
	}
	c.insert(key, w)
	return nil
}

// lookup returns the cached window and promotes it, or nil.
func (c *WindowCache) lookup(key Key) *model.TimeframeWindow {
	c.mu.RLock()
	el, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	// Promotion mutates the LRU order, so re-check under the write lock:
	// the entry may have been evicted between the two lock regions.
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok = c.entries[key]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).window
}

// build computes a window from the master series. Degrades to the largest
// available window when the series ends before count is satisfied, applying
// the same clamp philosophy as date lookup.
func (c *WindowCache) build(key Key) (*model.TimeframeWindow, error) {
	mins, err := key.Timeframe.Minutes()
	if err != nil {
		return nil, err
	}
	if key.Count <= 0 {
		return nil, fmt.Errorf("window count must be positive, got %d", key.Count)
	}

	anchorIndex := c.store.IndexForDate(key.AnchorDate)
	span := key.Count * mins
	basis := c.store.SliceForward(anchorIndex, span)
	candles := agg.Aggregate(basis, mins)
	return model.NewWindow(key.Timeframe, key.AnchorDate, key.Count, candles), nil
}

// insert places a freshly built window at the MRU position and evicts the
// single least-recently-used entry if the cache is over capacity.
func (c *WindowCache) insert(key Key, w *model.TimeframeWindow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		// Raced with another builder; keep the existing entry fresh.
		el.Value.(*entry).window = w
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, window: w})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
		if c.OnEvict != nil {
			c.OnEvict()
		}
	}
}

// Len returns the number of cached windows.
func (c *WindowCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
