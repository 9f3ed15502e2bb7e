// Package cache implements the resolver's multi-level record cache: a
// positive answer cache, a negative (NXDOMAIN) cache, and a delegation
// (NS) cache, each keyed by canonical lowercase name and TTL-bounded.
//
// The cache is a process-wide singleton shared by every in-flight
// resolution, so the maps are sharded: a read of one key never blocks a
// write to another. There is no size bound; entries die by TTL deadline
// alone, enforced on read and swept by a background reclaim task.
package cache

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// DefaultTTLCap is the maximum TTL, in seconds, that a positive cache
// entry may be assigned regardless of what the record itself advertised.
const DefaultTTLCap = 300 * time.Second

// DefaultNegativeTTL is how long an NXDOMAIN is remembered when the
// caller has no SOA-derived minimum to fall back on.
const DefaultNegativeTTL = 60 * time.Second

// reclaimInterval is how often the background reclaim task scans for
// expired entries.
const reclaimInterval = 300 * time.Second

const shardCount = 32

type positiveEntry struct {
	records  []string
	deadline time.Time
}

type negativeEntry struct {
	deadline time.Time
}

type delegationEntry struct {
	nsAddrs  []string
	deadline time.Time
}

type shard struct {
	mu         sync.RWMutex
	records    map[string]positiveEntry
	negatives  map[string]negativeEntry
	delegation map[string]delegationEntry
}

// Cache is a TTL-keyed store for positive answers, negative answers, and
// delegation sets. The zero value is not usable; construct with New.
type Cache struct {
	shards [shardCount]*shard
	cap    time.Duration

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New returns a Cache whose positive entries are capped at ttlCap (use 0
// for DefaultTTLCap) and starts its background reclaim task. Call Close
// to stop that task.
func New(ttlCap time.Duration) *Cache {
	if ttlCap <= 0 {
		ttlCap = DefaultTTLCap
	}

	c := &Cache{
		cap:    ttlCap,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			records:    map[string]positiveEntry{},
			negatives:  map[string]negativeEntry{},
			delegation: map[string]delegationEntry{},
		}
	}

	go c.reclaimLoop()

	return c
}

// Close stops the background reclaim task. Safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
}

func cacheKey(name, typ string) string {
	return strings.ToLower(name) + ":" + strings.ToUpper(typ)
}

func (c *Cache) shardFor(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return c.shards[h.Sum32()%shardCount]
}

func clampTTL(ttl, cap time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	if ttl > cap {
		return cap
	}
	return ttl
}

// Get returns the cached answer for (name, typ) iff a non-expired
// positive entry exists.
func (c *Cache) Get(name, typ string) ([]string, bool) {
	k := cacheKey(name, typ)
	sh := c.shardFor(k)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.records[k]
	if !ok || !e.deadline.After(c.now()) {
		return nil, false
	}

	out := make([]string, len(e.records))
	copy(out, e.records)
	return out, true
}

// IsNegative reports whether a non-expired negative entry exists for
// (name, typ).
func (c *Cache) IsNegative(name, typ string) bool {
	k := cacheKey(name, typ)
	sh := c.shardFor(k)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.negatives[k]
	return ok && e.deadline.After(c.now())
}

// GetDelegation returns the cached nameserver set for zone, if any.
func (c *Cache) GetDelegation(zone string) ([]string, bool) {
	k := strings.ToLower(zone)
	sh := c.shardFor(k)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.delegation[k]
	if !ok || !e.deadline.After(c.now()) {
		return nil, false
	}

	out := make([]string, len(e.nsAddrs))
	copy(out, e.nsAddrs)
	return out, true
}

// Put writes a positive entry for (name, typ). ttl is clamped to
// [0, cap]; a ttl of 0 stores a transient entry that has already
// expired by the time the next read observes it. Put supersedes any
// existing negative entry for the same key.
func (c *Cache) Put(name, typ string, records []string, ttl time.Duration) {
	k := cacheKey(name, typ)
	sh := c.shardFor(k)
	deadline := c.now().Add(clampTTL(ttl, c.cap))

	cp := make([]string, len(records))
	copy(cp, records)

	sh.mu.Lock()
	sh.records[k] = positiveEntry{records: cp, deadline: deadline}
	delete(sh.negatives, k)
	sh.mu.Unlock()
}

// PutNegative writes a negative entry for (name, typ), superseding any
// existing positive entry for the same key.
func (c *Cache) PutNegative(name, typ string, ttl time.Duration) {
	k := cacheKey(name, typ)
	sh := c.shardFor(k)
	deadline := c.now().Add(clampTTL(ttl, c.cap))

	sh.mu.Lock()
	sh.negatives[k] = negativeEntry{deadline: deadline}
	delete(sh.records, k)
	sh.mu.Unlock()
}

// PutDelegation writes the nameserver set for zone.
func (c *Cache) PutDelegation(zone string, nsAddrs []string, ttl time.Duration) {
	k := strings.ToLower(zone)
	sh := c.shardFor(k)
	deadline := c.now().Add(clampTTL(ttl, c.cap))

	cp := make([]string, len(nsAddrs))
	copy(cp, nsAddrs)

	sh.mu.Lock()
	sh.delegation[k] = delegationEntry{nsAddrs: cp, deadline: deadline}
	sh.mu.Unlock()
}

func (c *Cache) reclaimLoop() {
	defer close(c.doneCh)

	t := time.NewTicker(reclaimInterval)
	defer t.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			c.reclaimOnce()
		}
	}
}

// reclaimOnce removes every entry whose deadline has passed. It never
// clobbers a key refreshed concurrently: the expiry check happens under
// the same per-shard lock as the delete, so a writer racing the scan
// either lands before the check (and is reclaimed only if still
// expired) or after the delete (and its fresh entry survives).
func (c *Cache) reclaimOnce() {
	now := c.now()

	for _, sh := range c.shards {
		sh.mu.Lock()
		for k, e := range sh.records {
			if !e.deadline.After(now) {
				delete(sh.records, k)
			}
		}
		for k, e := range sh.negatives {
			if !e.deadline.After(now) {
				delete(sh.negatives, k)
			}
		}
		for k, e := range sh.delegation {
			if !e.deadline.After(now) {
				delete(sh.delegation, k)
			}
		}
		sh.mu.Unlock()
	}
}
