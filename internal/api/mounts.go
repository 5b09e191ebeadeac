package api

import (
	"sync"
	"time"
)

// Mounts maps each browser client's currently viewed page onto poller
// subscriptions. A page render "mounts" its queries; navigating to a
// different page unmounts the previous one, and clients that stop rendering
// altogether are swept after an idle window. This keeps the invariant that a
// query polls for exactly as long as at least one consumer is looking at it.
type Mounts struct {
	poller *Poller
	idle   time.Duration

	mu      sync.Mutex
	clients map[string]*clientMount
	stop    chan struct{}
	once    sync.Once
}

type clientMount struct {
	page     string
	subs     map[string]func() // query key -> unsubscribe
	lastSeen time.Time
}

func (cm *clientMount) unsubscribeAll() {
	for key, u := range cm.subs {
		u()
		delete(cm.subs, key)
	}
}

// NewMounts creates a tracker sweeping clients idle longer than idle.
func NewMounts(poller *Poller, idle time.Duration) *Mounts {
	m := &Mounts{
		poller:  poller,
		idle:    idle,
		clients: make(map[string]*clientMount),
		stop:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Visit records that clientID is now viewing page, subscribing its queries.
// The subscription set is diffed by query key, not by page: re-rendering the
// same page with the same queries only refreshes the idle stamp, but a render
// that mounts different keys (the recipients table on another page cursor)
// drops the stale subscriptions and picks up the new ones. Switching pages
// unsubscribes the old page entirely.
func (m *Mounts) Visit(clientID, page string, queries ...Query) {
	if clientID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cm, ok := m.clients[clientID]
	if !ok || cm.page != page {
		if ok {
			cm.unsubscribeAll()
		}
		cm = &clientMount{page: page, subs: make(map[string]func())}
		m.clients[clientID] = cm
	}
	cm.lastSeen = time.Now()

	mounted := make(map[string]bool, len(queries))
	for _, q := range queries {
		mounted[q.Key] = true
		if _, ok := cm.subs[q.Key]; !ok {
			cm.subs[q.Key] = m.poller.Subscribe(q)
		}
	}
	for key, u := range cm.subs {
		if !mounted[key] {
			u()
			delete(cm.subs, key)
		}
	}
}

// Leave drops all subscriptions for clientID, used on logout.
func (m *Mounts) Leave(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cm, ok := m.clients[clientID]; ok {
		cm.unsubscribeAll()
		delete(m.clients, clientID)
	}
}

// Close stops the sweeper and unsubscribes everything.
func (m *Mounts) Close() {
	m.once.Do(func() { close(m.stop) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cm := range m.clients {
		cm.unsubscribeAll()
		delete(m.clients, id)
	}
}

func (m *Mounts) sweep() {
	ticker := time.NewTicker(m.idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.idle)
			m.mu.Lock()
			for id, cm := range m.clients {
				if cm.lastSeen.Before(cutoff) {
					cm.unsubscribeAll()
					delete(m.clients, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
