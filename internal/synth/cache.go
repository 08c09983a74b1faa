package synth

import (
	"strings"
	"sync"
	"time"
)

// cacheKey identifies one synthesis result. Near-hits match on everything
// except the emotion bucket.
type cacheKey struct {
	voiceID string
	text    string // normalized
	lang    string
	bucket  string
}

func (k cacheKey) String() string {
	return strings.Join([]string{k.voiceID, k.text, k.lang, k.bucket}, "\x1f")
}

type cacheEntry struct {
	key   cacheKey
	audio []byte
	at    time.Time
}

// cache is the synthesis dedup cache, shared across sessions. Entries are
// time-bounded, never count-bounded: the point is suppressing rapid-fire
// duplicate synthesis, not saving provider quota. Eviction runs on insert.
type cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	exactTTL time.Duration
	nearTTL  time.Duration
	maxAge   time.Duration
}

func newCache(exactTTL, nearTTL, maxAge time.Duration) *cache {
	return &cache{
		entries:  make(map[string]*cacheEntry),
		exactTTL: exactTTL,
		nearTTL:  nearTTL,
		maxAge:   maxAge,
	}
}

// lookup returns cached audio and the hit kind ("exact" or "near"), or nil.
// Exact hits require the full key within exactTTL; near hits ignore the
// emotion bucket and use the tighter nearTTL. Expired entries never match
// even if not yet evicted.
func (c *cache) lookup(key cacheKey, now time.Time) ([]byte, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key.String()]; ok && now.Sub(e.at) < c.exactTTL {
		return e.audio, "exact"
	}

	for _, e := range c.entries {
		if e.key.voiceID == key.voiceID &&
			e.key.text == key.text &&
			e.key.lang == key.lang &&
			now.Sub(e.at) < c.nearTTL {
			return e.audio, "near"
		}
	}
	return nil, ""
}

// insert stores a synthesis result and evicts everything past maxAge.
func (c *cache) insert(key cacheKey, audio []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if now.Sub(e.at) > c.maxAge {
			delete(c.entries, k)
		}
	}
	c.entries[key.String()] = &cacheEntry{key: key, audio: audio, at: now}
}

// sweep evicts expired entries outside the insert path (reaper-driven).
func (c *cache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if now.Sub(e.at) > c.maxAge {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
