// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"fmt"
	"sync"
	"time"

	"github.com/jcodagnone/geosites/spatial"
	"github.com/jcodagnone/geosites/utils/textutils"
)

// DefaultBiasCellResolution is the H3 resolution used to coarsen bias points
// in cache keys (cells of roughly 250 km²).
const DefaultBiasCellResolution = 5

// CacheKey builds the cache key for a lookup: the normalized name plus the
// H3 cell holding the bias, so nearby biases share entries.
func CacheKey(name string, bias *spatial.Point, cellResolution int) string {
	key := textutils.NormalizeName(name)
	if bias == nil {
		return key
	}

	cell, err := bias.Cell(cellResolution)
	if err != nil {
		return fmt.Sprintf("%s|%.2f,%.2f", key, bias.Lat, bias.Lng)
	}

	return key + "|" + cell.String()
}

type cacheEntry struct {
	resolution Resolution
	stored     time.Time
}

// Cache holds geocoding outcomes, found or not, shared by every run in the
// process.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	hits    int64
	misses  int64
}

// NewCache returns an empty cache. A ttl of zero keeps entries forever.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) fresh(e cacheEntry) bool {
	return c.ttl <= 0 || c.now().Sub(e.stored) < c.ttl
}

// Get returns the cached outcome for key.
func (c *Cache) Get(key string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && !c.fresh(e) {
		delete(c.entries, key)

		ok = false
	}

	if !ok {
		c.misses++

		return Resolution{}, false
	}

	c.hits++

	return e.resolution, true
}

// peek is Get without touching the counters.
func (c *Cache) peek(key string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.fresh(e) {
		return Resolution{}, false
	}

	return e.resolution, true
}

// Put stores r under key unless a fresh entry is already there. It returns
// the entry that ends up cached.
func (c *Cache) Put(key string, r Resolution) Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.fresh(e) {
		return e.resolution
	}

	c.entries[key] = cacheEntry{resolution: r, stored: c.now()}

	return r
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Counters returns the hit and miss counts since the last Reset.
func (c *Cache) Counters() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.hits, c.misses
}

// Reset drops every entry and zeroes the counters.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.hits, c.misses = 0, 0
}
