package pipeline

import "sync"

// Gate allows at most one pending generation per key.
type Gate struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewGate creates an empty Gate.
func NewGate() *Gate {
	return &Gate{pending: make(map[string]struct{})}
}

// TryAcquire marks key as pending. It returns ok=false when a request for
// key is already in flight. release is idempotent.
func (g *Gate) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.pending[key]; busy {
		return func() {}, false
	}
	g.pending[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.pending, key)
			g.mu.Unlock()
		})
	}, true
}

// Pending reports whether key has a request in flight.
func (g *Gate) Pending(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.pending[key]
	return busy
}
