package stream

import (
	"sync"
	"testing"

	"tickstream/internal/model"
)

func TestCachePutReplacesLatest(t *testing.T) {
	c := NewCache()
	c.Put(model.Tick{InstrumentToken: 101, LastPrice: 2500.0})
	c.Put(model.Tick{InstrumentToken: 101, LastPrice: 2500.5})

	got, ok := c.Get(101)
	if !ok {
		t.Fatal("tick missing")
	}
	if got.LastPrice != 2500.5 {
		t.Errorf("last price: got %v, want 2500.5", got.LastPrice)
	}
	if c.Len() != 1 {
		t.Errorf("len: got %d, want 1", c.Len())
	}
}

func TestCacheMissingToken(t *testing.T) {
	if _, ok := NewCache().Get(42); ok {
		t.Error("got tick for token never stored")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(model.Tick{InstrumentToken: n, LastPrice: float64(j)})
			}
		}(int64(i))
		go func(n int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(n)
				c.All()
			}
		}(int64(i))
	}
	wg.Wait()
	if c.Len() != 8 {
		t.Errorf("len: got %d, want 8", c.Len())
	}
}
