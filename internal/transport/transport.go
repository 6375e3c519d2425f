package transport

import "context"

// Delivery is one inbound message plus its delivery metadata.
type Delivery struct {
	Data []byte
	ID   string
}

// Transport is the collaborator boundary toward the broker. Broadcast
// pushes operation bytes to every peer; Inbound yields deliveries until
// the transport closes, at which point the channel closes.
type Transport interface {
	Broadcast(ctx context.Context, data []byte) error
	Inbound() <-chan Delivery
	Close() error
}
