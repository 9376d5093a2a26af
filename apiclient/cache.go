package apiclient

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// responseCache is a small LRU of raw GET responses keyed by request
// path. Entries are dropped by mutations on the same collection and by
// realtime events.
type responseCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, []byte]
}

func newResponseCache(size int) *responseCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &responseCache{lru: c}
}

func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

func (c *responseCache) put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, data)
}

func (c *responseCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// collectionPrefix reduces a path to its first segment, so a mutation
// of /companies/5 invalidates everything cached under /companies.
func collectionPrefix(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(trimmed, "/?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}
