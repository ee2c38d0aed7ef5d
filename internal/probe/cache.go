package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "village:caps:"

// DurableCache is the flat key→JSON-blob side store backing the in-memory
// capability cache across restarts.
type DurableCache interface {
	Get(ctx context.Context, model string) ([]byte, bool, error)
	Put(ctx context.Context, model string, blob []byte) error
	Delete(ctx context.Context, model string) error
}

// RedisCache implements DurableCache on Redis. A nil client degrades to
// always-miss so the pipeline keeps working without Redis.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, model string) ([]byte, bool, error) {
	if c.rdb == nil {
		return nil, false, nil
	}
	blob, err := c.rdb.Get(ctx, redisKeyPrefix+model).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get capabilities: %w", err)
	}
	return blob, true, nil
}

func (c *RedisCache) Put(ctx context.Context, model string, blob []byte) error {
	if c.rdb == nil {
		return nil
	}
	// Capability records never expire; clearing is explicit.
	if err := c.rdb.Set(ctx, redisKeyPrefix+model, blob, 0).Err(); err != nil {
		return fmt.Errorf("redis set capabilities: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, model string) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, redisKeyPrefix+model).Err(); err != nil {
		return fmt.Errorf("redis del capabilities: %w", err)
	}
	return nil
}

// Cache layers the in-memory map over the durable side store.
// Writes go through to both; reads check memory first.
type Cache struct {
	mu      sync.RWMutex
	mem     map[string]DiscoveredCapabilities
	durable DurableCache
}

// NewCache creates a cache. durable may be nil for memory-only operation.
func NewCache(durable DurableCache) *Cache {
	return &Cache{
		mem:     make(map[string]DiscoveredCapabilities),
		durable: durable,
	}
}

// Get checks memory, then the durable store (promoting a hit to memory).
func (c *Cache) Get(ctx context.Context, model string) (DiscoveredCapabilities, bool) {
	c.mu.RLock()
	caps, ok := c.mem[model]
	c.mu.RUnlock()
	if ok {
		return caps, true
	}

	if c.durable == nil {
		return DiscoveredCapabilities{}, false
	}
	blob, found, err := c.durable.Get(ctx, model)
	if err != nil || !found {
		return DiscoveredCapabilities{}, false
	}
	if err := json.Unmarshal(blob, &caps); err != nil {
		return DiscoveredCapabilities{}, false
	}

	c.mu.Lock()
	c.mem[model] = caps
	c.mu.Unlock()
	return caps, true
}

// Put writes through to memory and the durable store. Last writer wins;
// records are idempotent so no coordination is needed across queues.
func (c *Cache) Put(ctx context.Context, caps DiscoveredCapabilities) {
	c.mu.Lock()
	c.mem[caps.ModelName] = caps
	c.mu.Unlock()

	if c.durable == nil {
		return
	}
	blob, err := json.Marshal(caps)
	if err != nil {
		return
	}
	// Durable write failures are tolerated; memory still serves.
	putCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = c.durable.Put(putCtx, caps.ModelName, blob)
}

// Clear removes a model's record from both layers, forcing the next
// GetOrDiscover to re-run the probe battery.
func (c *Cache) Clear(ctx context.Context, model string) {
	c.mu.Lock()
	delete(c.mem, model)
	c.mu.Unlock()

	if c.durable != nil {
		_ = c.durable.Delete(ctx, model)
	}
}
