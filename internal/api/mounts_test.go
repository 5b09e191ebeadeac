package api

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestVisitSubscribesPageQueries(t *testing.T) {
	cache := NewCache()
	p := NewPoller(cache, 10*time.Millisecond, testLogger())
	defer p.Stop()
	m := NewMounts(p, time.Hour)
	defer m.Close()

	var fetches atomic.Int32
	q := Query{Key: "campaigns", Fetch: func(ctx context.Context) (any, error) {
		fetches.Add(1)
		return "v", nil
	}}

	m.Visit("client-1", "/campaigns", q)

	waitFor(t, time.Second, func() bool { return fetches.Load() >= 1 },
		"visiting a page did not start polling its queries")
}

func TestNavigationSwapsSubscriptions(t *testing.T) {
	cache := NewCache()
	p := NewPoller(cache, 10*time.Millisecond, testLogger())
	defer p.Stop()
	m := NewMounts(p, time.Hour)
	defer m.Close()

	var listFetches, detailFetches atomic.Int32
	list := Query{Key: "campaigns", Fetch: func(ctx context.Context) (any, error) {
		listFetches.Add(1)
		return "list", nil
	}}
	detail := Query{Key: "campaign:c1", Fetch: func(ctx context.Context) (any, error) {
		detailFetches.Add(1)
		return "detail", nil
	}}

	m.Visit("client-1", "/campaigns", list)
	waitFor(t, time.Second, func() bool { return listFetches.Load() >= 1 }, "list never polled")

	m.Visit("client-1", "/campaigns/c1", detail)
	waitFor(t, time.Second, func() bool { return detailFetches.Load() >= 1 }, "detail never polled")

	settled := listFetches.Load()
	time.Sleep(50 * time.Millisecond)
	if n := listFetches.Load(); n > settled+1 {
		t.Errorf("old page still polling after navigation: %d fetches after %d", n, settled)
	}
}

func TestRevisitSamePageKeepsSubscription(t *testing.T) {
	cache := NewCache()
	p := NewPoller(cache, time.Hour, testLogger())
	defer p.Stop()
	m := NewMounts(p, time.Hour)
	defer m.Close()

	var subs atomic.Int32
	q := Query{Key: "campaigns", Fetch: func(ctx context.Context) (any, error) {
		subs.Add(1)
		return "v", nil
	}}

	m.Visit("client-1", "/campaigns", q)
	m.Visit("client-1", "/campaigns", q)
	m.Visit("client-1", "/campaigns", q)

	p.mu.Lock()
	sub, ok := p.subs["campaigns"]
	refs := 0
	if ok {
		refs = sub.refs
	}
	p.mu.Unlock()

	if !ok || refs != 1 {
		t.Errorf("refs after three renders of the same page = %d, want 1", refs)
	}
}

func TestRevisitSwapsPageCursorQueries(t *testing.T) {
	cache := NewCache()
	p := NewPoller(cache, 10*time.Millisecond, testLogger())
	defer p.Stop()
	m := NewMounts(p, time.Hour)
	defer m.Close()

	var page1Fetches, page2Fetches atomic.Int32
	page1 := Query{Key: "recipients:c1:page=1", Fetch: func(ctx context.Context) (any, error) {
		page1Fetches.Add(1)
		return "page1", nil
	}}
	page2 := Query{Key: "recipients:c1:page=2", Fetch: func(ctx context.Context) (any, error) {
		page2Fetches.Add(1)
		return "page2", nil
	}}

	// Same page path both times; only the table cursor changed.
	m.Visit("client-1", "/campaigns/c1", page1)
	waitFor(t, time.Second, func() bool { return page1Fetches.Load() >= 1 }, "page 1 never polled")

	m.Visit("client-1", "/campaigns/c1", page2)
	waitFor(t, time.Second, func() bool { return page2Fetches.Load() >= 1 },
		"page 2 is the mounted query but was never polled")

	settled := page1Fetches.Load()
	time.Sleep(50 * time.Millisecond)
	if n := page1Fetches.Load(); n > settled+1 {
		t.Errorf("page 1 still polling after the cursor moved: %d fetches after %d", n, settled)
	}

	p.mu.Lock()
	_, oldAlive := p.subs["recipients:c1:page=1"]
	sub, newAlive := p.subs["recipients:c1:page=2"]
	refs := 0
	if newAlive {
		refs = sub.refs
	}
	p.mu.Unlock()

	if oldAlive {
		t.Error("previous cursor's subscription still registered")
	}
	if !newAlive || refs != 1 {
		t.Errorf("current cursor refs = %d, want 1", refs)
	}
}

func TestLeaveUnsubscribes(t *testing.T) {
	cache := NewCache()
	p := NewPoller(cache, 10*time.Millisecond, testLogger())
	defer p.Stop()
	m := NewMounts(p, time.Hour)
	defer m.Close()

	var fetches atomic.Int32
	q := Query{Key: "profile", Fetch: func(ctx context.Context) (any, error) {
		fetches.Add(1)
		return "u", nil
	}}

	m.Visit("client-1", "/dashboard", q)
	waitFor(t, time.Second, func() bool { return fetches.Load() >= 1 }, "no poll tick")

	m.Leave("client-1")

	settled := fetches.Load()
	time.Sleep(50 * time.Millisecond)
	if n := fetches.Load(); n > settled+1 {
		t.Errorf("polling continued after Leave")
	}
}

func TestIdleClientsAreSwept(t *testing.T) {
	cache := NewCache()
	p := NewPoller(cache, time.Hour, testLogger())
	defer p.Stop()
	m := NewMounts(p, 30*time.Millisecond)
	defer m.Close()

	q := Query{Key: "campaigns", Fetch: func(ctx context.Context) (any, error) { return "v", nil }}
	m.Visit("client-1", "/campaigns", q)

	waitFor(t, time.Second, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.clients) == 0
	}, "idle client was never swept")

	p.mu.Lock()
	_, alive := p.subs["campaigns"]
	p.mu.Unlock()
	if alive {
		t.Error("swept client's subscription still registered")
	}
}

func TestVisitIgnoresEmptyClientID(t *testing.T) {
	cache := NewCache()
	p := NewPoller(cache, time.Hour, testLogger())
	defer p.Stop()
	m := NewMounts(p, time.Hour)
	defer m.Close()

	q := Query{Key: "k", Fetch: func(ctx context.Context) (any, error) { return nil, nil }}
	m.Visit("", "/campaigns", q)

	m.mu.Lock()
	n := len(m.clients)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("anonymous visit tracked: %d clients", n)
	}
}
