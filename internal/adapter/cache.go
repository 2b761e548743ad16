package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadscope/enrich/internal/citation"
)

// CacheEntry stores a parsed response alongside the citation that produced
// it. Freshness of the entry is a TTL concern; freshness of the data remains
// the citation's concern.
type CacheEntry struct {
	Value      any                      `json:"value"`
	Citation   *citation.SourceCitation `json:"citation"`
	CachedAt   time.Time                `json:"cached_at"`
	TTLSeconds int                      `json:"ttl_seconds"`
	CostUSD    float64                  `json:"cost_usd"`
}

// IsExpired reports whether the entry has outlived its TTL.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.Sub(e.CachedAt) > time.Duration(e.TTLSeconds)*time.Second
}

// Store is the cache backend contract. MemoryCache is the default;
// RedisCache shares entries across processes.
type Store interface {
	Get(ctx context.Context, key string) (*CacheEntry, bool)
	Set(ctx context.Context, key string, entry *CacheEntry)
	Delete(ctx context.Context, key string)
	Size(ctx context.Context) int
	Sweep(ctx context.Context) int
}

// CacheKey builds the stable key: the 32-char prefix of SHA-256 over a
// canonical JSON encoding of (adapter, endpoint, sorted params).
func CacheKey(adapterName, endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([][2]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, [2]string{k, params[k]})
	}
	canonical, _ := json.Marshal(struct {
		Adapter  string      `json:"adapter"`
		Endpoint string      `json:"endpoint"`
		Params   [][2]string `json:"params"`
	}{adapterName, endpoint, parts})

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:32]
}

// MemoryCache is the in-process TTL cache. Expired entries are removed on
// read and by Sweep; no background eviction.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*CacheEntry), now: time.Now}
}

// Get returns the entry when present and unexpired. Expired entries are
// removed under the same lock as the read.
func (c *MemoryCache) Get(_ context.Context, key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.IsExpired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return entry, true
}

// Set stores the entry.
func (c *MemoryCache) Set(_ context.Context, key string, entry *CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Delete removes the entry.
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the entry count, expired included.
func (c *MemoryCache) Size(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *MemoryCache) Sweep(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// RedisCache shares cache entries through redis. TTL enforcement is
// delegated to the backend; Sweep is a no-op.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps a redis client. Keys are namespaced under prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "enrich:cache"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// Get fetches and decodes the entry; misses and decode failures both report
// absent.
func (c *RedisCache) Get(ctx context.Context, key string) (*CacheEntry, bool) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	if entry.IsExpired(time.Now()) {
		return nil, false
	}
	return &entry, true
}

// Set encodes and stores the entry with the entry's TTL as the redis expiry.
func (c *RedisCache) Set(ctx context.Context, key string, entry *CacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ttl := time.Duration(entry.TTLSeconds) * time.Second
	c.client.Set(ctx, c.redisKey(key), raw, ttl)
}

// Delete removes the entry.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	c.client.Del(ctx, c.redisKey(key))
}

// Size returns the number of namespaced keys.
func (c *RedisCache) Size(ctx context.Context) int {
	n, err := c.client.Keys(ctx, c.prefix+":*").Result()
	if err != nil {
		return 0
	}
	return len(n)
}

// Sweep is a no-op; redis expires keys itself.
func (c *RedisCache) Sweep(_ context.Context) int { return 0 }
