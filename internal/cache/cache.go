// Package cache provides the process-wide read-through TTL cache that sits in
// front of profile and admin lookups. It is shared by every request worker;
// all access goes through this interface so the implementation could be
// swapped for a distributed cache without touching engine logic.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL = 5 * time.Minute

	// sweepEvery triggers an opportunistic full sweep of expired entries on
	// every Nth insert, bounding growth from entries nobody re-reads.
	sweepEvery = 100
)

// Namespaces for cache keys. Keys look like
// "<namespace>:<operation>:<subject-id>:<args-hash>".
const (
	NamespaceUserData    = "user_data"
	NamespaceAPIResponse = "api_response"
)

type entry struct {
	value        any
	createdAt    time.Time
	lastAccessed time.Time
	expiresAt    time.Time
}

// Cache is an in-memory key/value store with per-entry expiry. Expiry is
// lazy: a read past the deadline evicts the entry and reports a miss.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	inserts    int
	defaultTTL time.Duration
}

// New creates an empty cache with DefaultTTL as its fallback expiry.
func New() *Cache {
	return NewWithTTL(DefaultTTL)
}

// NewWithTTL creates an empty cache whose fallback expiry is ttl.
// Non-positive ttl falls back to DefaultTTL.
func NewWithTTL(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{entries: make(map[string]*entry), defaultTTL: ttl}
}

// Stats summarizes cache occupancy.
type Stats struct {
	TotalItems     int `json:"total_items"`
	ActiveItems    int `json:"active_items"`
	ExpiredItems   int `json:"expired_items"`
	MemoryEstimate int `json:"memory_usage_estimate"`
}

// Get returns the value for key, or a miss when absent or expired. An
// expired entry is evicted on the spot.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	e.lastAccessed = time.Now()
	return e.value, true
}

// Set stores value under key for ttl. Non-positive ttl falls back to the
// cache's default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		expiresAt:    now.Add(ttl),
	}

	c.inserts++
	if c.inserts%sweepEvery == 0 {
		c.sweepLocked(now)
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// InvalidateSubject removes every entry whose key carries subjectID in its
// subject segment. Callers must invalidate with the exact subject id the
// cache was populated with.
func (c *Cache) InvalidateSubject(subjectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		parts := strings.Split(key, ":")
		if len(parts) >= 3 && parts[2] == subjectID {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// GetStats returns occupancy counters. The memory estimate is the summed
// formatted length of cached values, mirroring how the admin dashboard
// reports it.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	s := Stats{TotalItems: len(c.entries)}
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			s.ExpiredItems++
		}
		s.MemoryEstimate += len(fmt.Sprintf("%v", e.value))
	}
	s.ActiveItems = s.TotalItems - s.ExpiredItems
	return s
}

// sweepLocked drops expired entries. Caller holds the write lock.
func (c *Cache) sweepLocked(now time.Time) {
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Key builds a deterministic namespaced cache key from the operation
// identity, the subject id and the operation arguments. Two users' cached
// results never collide, and an argument change produces a new key rather
// than a stale hit.
func Key(namespace, operation, subjectID string, args ...any) string {
	return fmt.Sprintf("%s:%s:%s:%s", namespace, operation, subjectID, hashArgs(args...))
}

func hashArgs(args ...any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		// Non-serializable arguments still need a stable key.
		raw = []byte(fmt.Sprintf("%v", args))
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// Fetch is the read-through wrapper: it returns the cached value when fresh,
// otherwise invokes producer, stores the result under key for ttl and
// returns it. Concurrent misses for the same key may each invoke producer;
// results are idempotent reads so the duplicate work is accepted. A cache
// failure never fails the caller - the worst case is an extra producer call.
func Fetch[T any](c *Cache, key string, ttl time.Duration, producer func() (T, error)) (T, error) {
	if c != nil {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
			// Type drift means the entry is unusable; drop it and refill.
			c.Delete(key)
		}
	}

	value, err := producer()
	if err != nil {
		var zero T
		return zero, err
	}

	if c != nil {
		c.Set(key, value, ttl)
	}
	return value, nil
}
