package api

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tag labels a group of cache entries for bulk invalidation. A query provides
// one or more tags; a mutation dirties tags, staling every entry that carries
// one of them.
type Tag string

const (
	TagUser      Tag = "User"
	TagCampaign  Tag = "Campaign"
	TagRecipient Tag = "Recipient"
)

// FetchFunc loads fresh data for a cache entry.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	data      any
	tags      []Tag
	fetchedAt time.Time
	stale     bool
}

type inflight struct {
	done chan struct{}
	data any
	err  error
	tags []Tag
	// dirty is set by Invalidate while the fetch is still in flight. The
	// result predates the mutation, so it is stored already stale. Guarded
	// by the cache mutex.
	dirty bool
}

// InvalidateFunc is notified with the set of dirtied tags after a mutation.
// The poller registers one to refetch mounted queries immediately instead of
// waiting for the next tick.
type InvalidateFunc func(tags []Tag)

// Cache is a staleness-bounded read cache with write-through tag
// invalidation. Entries are keyed by (user scope, endpoint, serialized
// params); concurrent fetches for one key share a single backend request.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	calls    map[string]*inflight
	watchers []InvalidateFunc

	hits          func(tag string)
	misses        func(tag string)
	invalidations func(tag string)
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		calls:   make(map[string]*inflight),
	}
}

// Observe registers counters for cache traffic. Any hook may be nil.
func (c *Cache) Observe(hits, misses, invalidations func(tag string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.invalidations = hits, misses, invalidations
}

// QueryKey builds a cache key from the user scope, endpoint path and query
// parameters. Parameters are serialized in sorted order so that page 1 and
// page 2 of one listing cache independently and never collide.
func QueryKey(scope, path string, params url.Values) string {
	var b strings.Builder
	b.WriteString(scope)
	b.WriteByte('|')
	b.WriteString(path)
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('|')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(params.Get(k))
		}
	}
	return b.String()
}

// GetOrFetch returns the cached value for key if present and not stale,
// otherwise fetches, stores and tags it. When a fetch for the same key is
// already in flight the caller waits for that result instead of issuing a
// duplicate request. A failed fetch leaves any previous entry untouched. A
// fetch that races an Invalidate of its tags completes normally but its
// result is stored stale, so the next access refetches.
func (c *Cache) GetOrFetch(ctx context.Context, key string, tags []Tag, fetch FetchFunc) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.stale {
		c.mu.Unlock()
		c.count(c.hits, tags)
		return e.data, nil
	}
	if call, ok := c.calls[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.data, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflight{done: make(chan struct{}), tags: tags}
	c.calls[key] = call
	c.mu.Unlock()

	c.count(c.misses, tags)
	data, err := fetch(ctx)

	c.mu.Lock()
	delete(c.calls, key)
	if err == nil {
		c.entries[key] = &entry{data: data, tags: tags, fetchedAt: time.Now(), stale: call.dirty}
	}
	c.mu.Unlock()

	call.data, call.err = data, err
	close(call.done)
	return data, err
}

// Refresh forces a fetch for key regardless of freshness, reusing any
// in-flight call. Used by the poller on each tick.
func (c *Cache) Refresh(ctx context.Context, key string, tags []Tag, fetch FetchFunc) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	c.mu.Unlock()
	return c.GetOrFetch(ctx, key, tags, fetch)
}

// Peek returns the cached value without fetching, stale or not. The second
// result reports presence.
func (c *Cache) Peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.data, true
	}
	return nil, false
}

// Invalidate marks every entry carrying one of the dirtied tags stale and
// notifies watchers. Stale entries are refetched on next access or next poll
// tick; watchers (the poller) refetch mounted queries immediately. Fetches
// still in flight for a dirtied tag are marked too: their result predates the
// mutation and must not be served as fresh.
func (c *Cache) Invalidate(tags ...Tag) {
	c.mu.Lock()
	for _, e := range c.entries {
		if e.stale {
			continue
		}
		for _, t := range e.tags {
			if containsTag(tags, t) {
				e.stale = true
				break
			}
		}
	}
	for _, call := range c.calls {
		for _, t := range call.tags {
			if containsTag(tags, t) {
				call.dirty = true
				break
			}
		}
	}
	watchers := make([]InvalidateFunc, len(c.watchers))
	copy(watchers, c.watchers)
	c.mu.Unlock()

	for _, t := range tags {
		if c.invalidations != nil {
			c.invalidations(string(t))
		}
	}
	for _, w := range watchers {
		w(tags)
	}
}

// Watch registers a function called after each Invalidate.
func (c *Cache) Watch(fn InvalidateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// DropScope removes every entry belonging to a user scope, used on logout.
func (c *Cache) DropScope(scope string) {
	prefix := scope + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) count(fn func(string), tags []Tag) {
	if fn == nil {
		return
	}
	for _, t := range tags {
		fn(string(t))
	}
}

func containsTag(tags []Tag, t Tag) bool {
	for _, x := range tags {
		if x == t {
			return true
		}
	}
	return false
}
