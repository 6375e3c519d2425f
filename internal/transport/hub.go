package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Hub is an in-process broker for tests and single-process setups. Each
// member's broadcast is delivered to every other member, mirroring the
// production topology where an agent publishes to peers and consumes only
// its local endpoint.
type Hub struct {
	mu      sync.Mutex
	members map[string]*hubMember
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{members: make(map[string]*hubMember)}
}

// Join registers a member and returns its transport.
func (h *Hub) Join(name string) Transport {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := &hubMember{
		hub:     h,
		name:    name,
		inbound: make(chan Delivery, 256),
	}
	h.members[name] = m
	return m
}

func (h *Hub) broadcast(from string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, m := range h.members {
		if name == from || m.closed {
			continue
		}
		cp := append([]byte(nil), data...)
		select {
		case m.inbound <- Delivery{Data: cp, ID: uuid.NewString()}:
		default:
			// Full buffer models a lossy transport; the reconciler heals it.
		}
	}
}

type hubMember struct {
	hub     *Hub
	name    string
	inbound chan Delivery
	closed  bool
}

func (m *hubMember) Broadcast(ctx context.Context, data []byte) error {
	m.hub.broadcast(m.name, data)
	return nil
}

func (m *hubMember) Inbound() <-chan Delivery {
	return m.inbound
}

func (m *hubMember) Close() error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.inbound)
	}
	return nil
}
