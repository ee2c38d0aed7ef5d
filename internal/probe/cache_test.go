package probe

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mapDurable is an in-memory DurableCache for tests.
type mapDurable struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
	gets int
}

func newMapDurable() *mapDurable {
	return &mapDurable{data: make(map[string][]byte)}
}

func (m *mapDurable) Get(_ context.Context, model string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	blob, ok := m.data[model]
	return blob, ok, nil
}

func (m *mapDurable) Put(_ context.Context, model string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.data[model] = blob
	return nil
}

func (m *mapDurable) Delete(_ context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, model)
	return nil
}

func TestCache_WriteThroughAndDurableFallback(t *testing.T) {
	durable := newMapDurable()
	c := NewCache(durable)

	caps := DiscoveredCapabilities{
		ModelName:       "m1",
		ThinkingFormat:  ThinkingTagged,
		ThinkingTagName: "think",
		DiscoveredAt:    time.Now().UTC().Truncate(time.Second),
	}
	c.Put(context.Background(), caps)

	if durable.puts != 1 {
		t.Fatalf("expected write-through to durable store, puts = %d", durable.puts)
	}

	// A fresh memory layer over the same durable store finds the record.
	c2 := NewCache(durable)
	got, ok := c2.Get(context.Background(), "m1")
	if !ok {
		t.Fatal("expected durable hit")
	}
	if got.ThinkingTagName != "think" || got.ThinkingFormat != ThinkingTagged {
		t.Errorf("round-tripped record mismatch: %+v", got)
	}

	// The durable hit is promoted to memory: no second durable read.
	getsAfterPromotion := durable.gets
	if _, ok := c2.Get(context.Background(), "m1"); !ok {
		t.Fatal("expected memory hit")
	}
	if durable.gets != getsAfterPromotion {
		t.Error("second read should be served from memory")
	}
}

func TestCache_MemoryOnlyWithoutDurable(t *testing.T) {
	c := NewCache(nil)
	c.Put(context.Background(), DiscoveredCapabilities{ModelName: "m", ThinkingFormat: ThinkingNone})
	if _, ok := c.Get(context.Background(), "m"); !ok {
		t.Fatal("expected memory hit")
	}
	if _, ok := c.Get(context.Background(), "other"); ok {
		t.Fatal("unexpected hit")
	}
}
