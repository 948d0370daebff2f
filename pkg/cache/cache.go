// Package cache implements the in-memory response cache keyed by a
// per-user prompt fingerprint.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatrelay-ai/chatrelay/pkg/models"
)

// prefixLen bounds how much of the prompt participates in the default
// fingerprint. Two prompts from the same user sharing this prefix alias
// to the same slot; that lossy behavior is long-standing and kept as the
// default. Set hash_keys in the config for a full-content key.
const prefixLen = 50

type entry struct {
	text      string
	createdAt time.Time
}

// Cache is an exact-match response cache with lazy TTL expiry.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	ttl      time.Duration
	hashKeys bool
	hits     atomic.Int64
	misses   atomic.Int64

	now func() time.Time
}

// New creates a Cache with the given TTL. When hashKeys is true, keys are
// SHA-256 hashes of the full prompt instead of a truncated prefix.
func New(ttl time.Duration, hashKeys bool) *Cache {
	return &Cache{
		entries:  make(map[string]entry),
		ttl:      ttl,
		hashKeys: hashKeys,
		now:      time.Now,
	}
}

// Key derives the cache fingerprint for a user and prompt.
func (c *Cache) Key(userID, prompt string) string {
	if c.hashKeys {
		h := sha256.Sum256([]byte(prompt))
		return userID + ":" + hex.EncodeToString(h[:])
	}
	runes := []rune(prompt)
	if len(runes) > prefixLen {
		runes = runes[:prefixLen]
	}
	return userID + ":" + string(runes)
}

// Lookup returns the cached response for a user and prompt. An entry older
// than the TTL reads as a miss but is left in place for the sweeper.
func (c *Cache) Lookup(userID, prompt string) (string, bool) {
	key := c.Key(userID, prompt)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) >= c.ttl {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return e.text, true
}

// Store saves a response for a user and prompt, replacing any prior entry.
func (c *Cache) Store(userID, prompt, text string) {
	key := c.Key(userID, prompt)

	c.mu.Lock()
	c.entries[key] = entry{text: text, createdAt: c.now()}
	c.mu.Unlock()
}

// SweepExpired removes all entries older than the TTL and returns how many
// were dropped. Runs on a periodic timer, independent of the request path.
func (c *Cache) SweepExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.createdAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries: int64(c.Len()),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
