// Package netstatus owns the boolean "online" signal the commit pipeline
// branches on. The engine never flips the signal itself: a save failure
// while believed online stays a save failure, only the provider decides
// when the device is offline.
package netstatus

import "sync"

// Provider exposes the current connectivity belief and transition
// notifications.
type Provider interface {
	Online() bool
	// Subscribe returns a channel receiving the new value on every
	// transition. The channel is buffered; slow consumers drop updates.
	Subscribe() <-chan bool
}

// Monitor is the in-process Provider implementation, driven by whatever
// probe the host wires in (a periodic ping, an OS signal, an operator
// toggle).
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// NewMonitor creates a monitor with the given initial belief.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) Subscribe() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan bool, 1)
	m.subs = append(m.subs, ch)
	return ch
}

// SetOnline updates the belief and notifies subscribers on transitions.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
		}
	}
}
