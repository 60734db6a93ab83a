package stream

import (
	"sync"

	"tickstream/internal/model"
)

// Cache holds the latest tick per instrument. Written by the dispatcher,
// read by the rest of the application at any rate. No history is retained.
type Cache struct {
	mu    sync.RWMutex
	ticks map[int64]model.Tick
}

// NewCache creates an empty tick cache.
func NewCache() *Cache {
	return &Cache{ticks: make(map[int64]model.Tick)}
}

// Put stores the tick, replacing any previous tick for the same instrument.
func (c *Cache) Put(t model.Tick) {
	c.mu.Lock()
	c.ticks[t.InstrumentToken] = t
	c.mu.Unlock()
}

// Get returns the latest tick for an instrument.
func (c *Cache) Get(token int64) (model.Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[token]
	return t, ok
}

// Len returns the number of instruments with a cached tick.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}

// All returns a copy of the full latest-tick map.
func (c *Cache) All() map[int64]model.Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make(map[int64]model.Tick, len(c.ticks))
	for k, v := range c.ticks {
		cp[k] = v
	}
	return cp
}
