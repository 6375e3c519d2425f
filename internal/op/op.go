package op

import (
	"encoding/json"
	"errors"
	"fmt"

	"kvsync/internal/version"
)

// Kind discriminates the two mutation intents.
type Kind string

const (
	Put    Kind = "put"
	Delete Kind = "delete"
)

// ErrMalformed marks an inbound operation that failed to decode or is
// missing required fields. The applier logs and discards such messages;
// one bad message must never crash the loop.
var ErrMalformed = errors.New("malformed operation")

// Operation is an intent to mutate one key. (Bucket, Key) is the conflict
// domain; Timestamp and NodeID are the provenance under which the write
// competes. Value is present iff Kind is Put.
type Operation struct {
	Kind      Kind   `json:"kind"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp"`
	NodeID    string `json:"node_id"`
}

// Version projects the comparable (timestamp, node, tombstone) tuple from
// the operation.
func (o Operation) Version() version.Version {
	return version.Version{
		Timestamp: o.Timestamp,
		NodeID:    o.NodeID,
		Tombstone: o.Kind == Delete,
	}
}

// Encode serializes the operation for broadcast.
func Encode(o Operation) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode operation: %w", err)
	}
	return data, nil
}

// Decode parses and validates an inbound operation. Any failure is
// reported as ErrMalformed with the cause attached.
func Decode(data []byte) (Operation, error) {
	var o Operation
	if err := json.Unmarshal(data, &o); err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := o.validate(); err != nil {
		return Operation{}, err
	}
	return o, nil
}

func (o Operation) validate() error {
	switch o.Kind {
	case Put, Delete:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, o.Kind)
	}
	if o.Bucket == "" || o.Key == "" {
		return fmt.Errorf("%w: missing bucket or key", ErrMalformed)
	}
	if o.NodeID == "" {
		return fmt.Errorf("%w: missing node id", ErrMalformed)
	}
	if o.Timestamp <= 0 {
		return fmt.Errorf("%w: non-positive timestamp %d", ErrMalformed, o.Timestamp)
	}
	if o.Kind == Delete && len(o.Value) > 0 {
		return fmt.Errorf("%w: delete carries a value", ErrMalformed)
	}
	return nil
}
