package resilience

import (
	"sort"
	"sync"
)

// Breakers owns one CircuitBreaker per destination name. Breakers are created
// on first use with the shared config and kept for the life of the registry.
type Breakers struct {
	config BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers(config BreakerConfig) *Breakers {
	return &Breakers{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it if needed.
func (b *Breakers) Get(name string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[name]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, b.config)
	b.breakers[name] = cb
	return cb
}

// Snapshots returns the state of every known breaker, sorted by name.
func (b *Breakers) Snapshots() []Snapshot {
	b.mu.RLock()
	list := make([]*CircuitBreaker, 0, len(b.breakers))
	for _, cb := range b.breakers {
		list = append(list, cb)
	}
	b.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, cb := range list {
		out = append(out, cb.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
