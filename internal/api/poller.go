package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Query describes a pollable cache entry: its key, the tags it provides and
// how to load it.
type Query struct {
	Key   string
	Tags  []Tag
	Fetch FetchFunc
}

type subscription struct {
	query Query
	refs  int
	stop  chan struct{}
}

// Poller re-issues subscribed queries on a fixed interval, one logical timer
// per query key. Subscriptions are refcounted: the timer starts with the
// first subscriber and stops with the last unsubscribe, so navigating away
// never leaves an orphaned timer. Tag invalidations trigger an immediate
// refresh of every subscribed query carrying a dirtied tag.
type Poller struct {
	cache    *Cache
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]*subscription

	ticks func(tag string)
}

// NewPoller creates a poller over cache and registers it for invalidation
// notifications.
func NewPoller(cache *Cache, interval time.Duration, logger *slog.Logger) *Poller {
	p := &Poller{
		cache:    cache,
		interval: interval,
		logger:   logger.With("component", "poller"),
		subs:     make(map[string]*subscription),
	}
	cache.Watch(p.onInvalidate)
	return p
}

// Observe registers a counter incremented once per poll tick per tag.
func (p *Poller) Observe(ticks func(tag string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = ticks
}

// Subscribe registers interest in q and returns an unsubscribe function. The
// returned function is idempotent.
func (p *Poller) Subscribe(q Query) func() {
	p.mu.Lock()
	sub, ok := p.subs[q.Key]
	if ok {
		sub.refs++
	} else {
		sub = &subscription{query: q, refs: 1, stop: make(chan struct{})}
		p.subs[q.Key] = sub
		go p.run(sub)
	}
	p.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { p.unsubscribe(q.Key) }) }
}

func (p *Poller) unsubscribe(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[key]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs <= 0 {
		close(sub.stop)
		delete(p.subs, key)
	}
}

// Stop cancels every active subscription.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, sub := range p.subs {
		close(sub.stop)
		delete(p.subs, key)
	}
}

func (p *Poller) run(sub *subscription) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.stop:
			return
		case <-ticker.C:
			p.refresh(sub.query)
			p.mu.Lock()
			ticks := p.ticks
			p.mu.Unlock()
			if ticks != nil {
				for _, t := range sub.query.Tags {
					ticks(string(t))
				}
			}
		}
	}
}

func (p *Poller) refresh(q Query) {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()
	if _, err := p.cache.Refresh(ctx, q.Key, q.Tags, q.Fetch); err != nil {
		// Polling is best effort; the stale entry stays served until a
		// later refresh succeeds.
		p.logger.Debug("poll refresh failed", "key", q.Key, "error", err)
	}
}

// onInvalidate refetches every subscribed query carrying a dirtied tag so the
// mutation's effect is visible immediately rather than on the next tick.
func (p *Poller) onInvalidate(tags []Tag) {
	p.mu.Lock()
	var dirty []Query
	for _, sub := range p.subs {
		for _, t := range sub.query.Tags {
			if containsTag(tags, t) {
				dirty = append(dirty, sub.query)
				break
			}
		}
	}
	p.mu.Unlock()

	for _, q := range dirty {
		go p.refresh(q)
	}
}
