package table

import (
	"sync"
	"time"
)

// Registry hands out one Controller per (client, campaign) pair so edit state
// survives across page renders, and forgets controllers for clients that have
// gone quiet.
type Registry struct {
	client ClientFactory
	idle   time.Duration

	mu          sync.Mutex
	controllers map[registryKey]*entry
	stop        chan struct{}
	once        sync.Once
}

// ClientFactory builds the controller for a campaign. Kept as a function so
// the registry does not need to know the API client's construction details.
type ClientFactory func(campaignID string) *Controller

type registryKey struct {
	clientID   string
	campaignID string
}

type entry struct {
	controller *Controller
	lastSeen   time.Time
}

// NewRegistry creates a registry sweeping controllers idle longer than idle.
func NewRegistry(factory ClientFactory, idle time.Duration) *Registry {
	r := &Registry{
		client:      factory,
		idle:        idle,
		controllers: make(map[registryKey]*entry),
		stop:        make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Get returns the controller for clientID's view of campaignID, creating it
// on first use.
func (r *Registry) Get(clientID, campaignID string) *Controller {
	key := registryKey{clientID: clientID, campaignID: campaignID}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.controllers[key]
	if !ok {
		e = &entry{controller: r.client(campaignID)}
		r.controllers[key] = e
	}
	e.lastSeen = time.Now()
	return e.controller
}

// Drop forgets every controller belonging to clientID, used on logout.
func (r *Registry) Drop(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.controllers {
		if key.clientID == clientID {
			delete(r.controllers, key)
		}
	}
}

// Close stops the sweeper.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(r.idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.idle)
			r.mu.Lock()
			for key, e := range r.controllers {
				if e.lastSeen.Before(cutoff) {
					delete(r.controllers, key)
				}
			}
			r.mu.Unlock()
		}
	}
}
