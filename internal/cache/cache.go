package cache

import (
	"sort"
	"sync"
	"time"

	"PaperDesk/internal/model"
)

// DefaultLevel always exists; unknown level names resolve to it.
const DefaultLevel = "default"

// DefaultLevels returns the built-in level TTLs.
func DefaultLevels() map[string]time.Duration {
	return map[string]time.Duration{
		"fast":       5 * time.Minute,
		DefaultLevel: 10 * time.Minute,
		"slow":       15 * time.Minute,
	}
}

type entry struct {
	decision   model.Decision
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry) validAt(now time.Time) bool {
	return now.Before(e.insertedAt.Add(e.ttl))
}

type counters struct {
	hits   uint64
	misses uint64
}

// LevelStats describes one cache level.
type LevelStats struct {
	Level   string        `json:"level"`
	TTL     time.Duration `json:"ttl"`
	Entries int           `json:"entries"`
	Valid   int           `json:"valid"`
	Expired int           `json:"expired"`
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s LevelStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache stores decisions keyed by fingerprint under named TTL levels.
// It is safe for concurrent use; all state sits behind one mutex.
type Cache struct {
	mu      sync.Mutex
	levels  map[string]time.Duration
	entries map[string]map[Fingerprint]entry
	stats   map[string]*counters
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given level TTLs. A missing or non-positive
// default level gets the built-in default TTL.
func New(levels map[string]time.Duration, opts ...Option) *Cache {
	c := &Cache{
		levels:  make(map[string]time.Duration, len(levels)+1),
		entries: make(map[string]map[Fingerprint]entry),
		stats:   make(map[string]*counters),
		now:     time.Now,
	}
	for name, ttl := range levels {
		if ttl > 0 {
			c.levels[name] = ttl
		}
	}
	if _, ok := c.levels[DefaultLevel]; !ok {
		c.levels[DefaultLevel] = DefaultLevels()[DefaultLevel]
	}
	for name := range c.levels {
		c.entries[name] = make(map[Fingerprint]entry)
		c.stats[name] = &counters{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve maps a level name to an existing level.
func (c *Cache) Resolve(level string) string {
	if _, ok := c.levels[level]; ok {
		return level
	}
	return DefaultLevel
}

// TTL returns the TTL of the resolved level.
func (c *Cache) TTL(level string) time.Duration {
	return c.levels[c.Resolve(level)]
}

// Get returns the cached decision and its insertion time. An entry whose
// TTL has elapsed is never returned.
func (c *Cache) Get(level string, fp Fingerprint) (model.Decision, time.Time, bool) {
	level = c.Resolve(level)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[level][fp]
	if ok && !e.validAt(c.now()) {
		delete(c.entries[level], fp)
		ok = false
	}
	if !ok {
		c.stats[level].misses++
		return model.Decision{}, time.Time{}, false
	}
	c.stats[level].hits++
	return e.decision, e.insertedAt, true
}

// IsValid reports whether a live entry exists without touching the hit counters.
func (c *Cache) IsValid(level string, fp Fingerprint) bool {
	level = c.Resolve(level)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[level][fp]
	return ok && e.validAt(c.now())
}

// Set stores a decision and drops expired entries of the same level.
func (c *Cache) Set(level string, fp Fingerprint, d model.Decision) {
	level = c.Resolve(level)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	bucket := c.entries[level]
	for k, e := range bucket {
		if !e.validAt(now) {
			delete(bucket, k)
		}
	}
	bucket[fp] = entry{decision: d, insertedAt: now, ttl: c.levels[level]}
}

// EvictExpired removes every expired entry and returns how many were removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, bucket := range c.entries {
		for k, e := range bucket {
			if !e.validAt(now) {
				delete(bucket, k)
				n++
			}
		}
	}
	return n
}

// Clear drops all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name := range c.entries {
		c.entries[name] = make(map[Fingerprint]entry)
	}
}

// Stats returns per-level statistics sorted by level name.
func (c *Cache) Stats() []LevelStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]LevelStats, 0, len(c.levels))
	for name, ttl := range c.levels {
		s := LevelStats{
			Level:   name,
			TTL:     ttl,
			Entries: len(c.entries[name]),
			Hits:    c.stats[name].hits,
			Misses:  c.stats[name].misses,
		}
		for _, e := range c.entries[name] {
			if e.validAt(now) {
				s.Valid++
			} else {
				s.Expired++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
