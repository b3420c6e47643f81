package mood

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/havenkids/haven/backend/internal/model/chat"
)

// Cache memoizes mood scores by content hash. It is a cost optimization
// only: a miss is never an error and entries are evicted opportunistically,
// with no background sweeper.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type cacheEntry struct {
	score    chat.MoodScore
	storedAt time.Time
}

// NewCache builds a cache bounded to maxEntries with the given TTL.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Key derives the cache key from the first 100 characters of text plus the
// age discriminator. Age changes the analysis prompt, so it must split the
// key space.
func Key(text string, age int) string {
	runes := []rune(text)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", string(runes), age)))
	return fmt.Sprintf("%x", h)
}

// Get returns a cached score if present and unexpired.
func (c *Cache) Get(key string) (chat.MoodScore, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return chat.MoodScore{}, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return chat.MoodScore{}, false
	}
	return entry.score, true
}

// Put stores a score and sweeps once the cache exceeds its bound: expired
// entries first, then oldest entries until back under the limit.
func (c *Cache) Put(key string, score chat.MoodScore) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{score: score, storedAt: c.now()}
	if len(c.entries) <= c.maxEntries {
		return
	}

	now := c.now()
	for k, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}

	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for k, entry := range c.entries {
			if oldestKey == "" || entry.storedAt.Before(oldest) {
				oldestKey = k
				oldest = entry.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
