package partner

import (
	"sync"
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/antonajp/ai4joy-sub002/model"
)

// DefaultTTL is how long a constructed handle is served before the next
// Resolve rebuilds it.
const DefaultTTL = 300 * time.Second

type cacheKey struct {
	phase    core.Phase
	coaching bool
}

type cacheEntry struct {
	partner *Partner
	expires time.Time
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	// TTL is the entry lifetime measured from construction.
	TTL time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
	// PartnerOptions are forwarded to every constructed Partner.
	PartnerOptions []func(o *Options)
}

// Cache memoizes Partner handles keyed by (phase, coaching). Expiry is
// checked on every Resolve so a stale handle is never returned. Safe for
// concurrent use across sessions.
type Cache struct {
	llm  model.Model
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	opts []func(o *Options)

	entries map[cacheKey]cacheEntry
}

// NewCache constructs a cache building handles over the given model.
func NewCache(llm model.Model, optFns ...func(o *CacheOptions)) *Cache {
	opts := CacheOptions{TTL: DefaultTTL, Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Cache{
		llm:     llm,
		ttl:     opts.TTL,
		now:     opts.Clock,
		opts:    opts.PartnerOptions,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Resolve returns the cached handle for (phase, coaching), constructing it on
// miss or expiry.
func (c *Cache) Resolve(phase core.Phase, coaching bool) (*Partner, error) {
	key := cacheKey{phase: phase, coaching: coaching}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.now().Before(e.expires) {
		return e.partner, nil
	}

	p, err := New(c.llm, phase, coaching, c.opts...)
	if err != nil {
		return nil, err
	}
	c.entries[key] = cacheEntry{partner: p, expires: c.now().Add(c.ttl)}
	return p, nil
}

// Invalidate drops the entry for (phase, coaching) if present.
func (c *Cache) Invalidate(phase core.Phase, coaching bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{phase: phase, coaching: coaching})
}

// InvalidateAll drops every cached handle.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}
