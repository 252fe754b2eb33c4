package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/igextract/models"
)

// entry holds a cached entity with its creation timestamp.
type entry struct {
	entity    *models.CanonicalEntity
	createdAt time.Time
}

// Cache is a simple in-memory cache for extracted entities.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stop chan struct{}
	once sync.Once
}

// New creates a Cache holding at most maxEntries entities for up to ttl.
// A background goroutine evicts expired entries until Close is called.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key normalises an Instagram URL so trailing slashes, query strings and
// host case do not split the cache.
func Key(rawURL string) string {
	norm := strings.TrimSpace(rawURL)
	if u, err := url.Parse(norm); err == nil && u.Host != "" {
		host := strings.TrimPrefix(strings.ToLower(u.Host), "m.")
		if !strings.HasPrefix(host, "www.") {
			host = "www." + host
		}
		norm = host + strings.TrimRight(u.Path, "/")
	}
	h := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(h[:])
}

// Get retrieves a cached entity if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// Returns the entity and whether it was a cache hit.
func (c *Cache) Get(key string, maxAgeMs int) (*models.CanonicalEntity, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	age := c.now().Sub(e.createdAt)
	if age > time.Duration(maxAgeMs)*time.Millisecond || (c.ttl > 0 && age > c.ttl) {
		return nil, false
	}

	return e.entity, true
}

// Set stores an entity. If the cache is at capacity, the oldest entry is
// evicted to make room.
func (c *Cache) Set(key string, entity *models.CanonicalEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && c.maxEntries > 0 && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{
		entity:    entity,
		createdAt: c.now(),
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupLoop evicts entries older than the TTL every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	if c.ttl <= 0 {
		return
	}
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}
