package alerting

import "sync"

// Gate is the process-wide arming switch. Detection always runs; the gate
// only decides whether a formatted message reaches the notifier.
type Gate struct {
	mu    sync.Mutex
	armed bool
}

// NewGate returns a gate in the given initial state.
func NewGate(armed bool) *Gate {
	return &Gate{armed: armed}
}

// Armed reports the current state.
func (g *Gate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Toggle flips the state and returns the new value.
func (g *Gate) Toggle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = !g.armed
	return g.armed
}
