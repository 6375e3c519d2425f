package storage

import (
	"bytes"
	"context"
	"time"
)

// Poller derives change events for backends without native notifications
// by scanning the facade on an interval and diffing against the previous
// snapshot. The first scan establishes the baseline silently, so a fresh
// agent never treats pre-existing data as new edits; the detector's
// seeding pass covers that state instead.
type Poller struct {
	facade   Facade
	interval time.Duration
}

// NewPoller creates a poller over facade. interval <= 0 defaults to one
// second.
func NewPoller(facade Facade, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{facade: facade, interval: interval}
}

// Watch starts the scan loop and returns the event channel. The channel
// closes when ctx is cancelled.
func (p *Poller) Watch(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)

		snapshot := make(map[string]*Entry)
		p.scan(ctx, snapshot, nil) // baseline

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.scan(ctx, snapshot, out)
			}
		}
	}()

	return out
}

// scan diffs current facade state against snapshot, emitting events for
// every changed, new or vanished key. A nil out suppresses emission.
// Backend errors end the scan early; the next tick retries.
func (p *Poller) scan(ctx context.Context, snapshot map[string]*Entry, out chan<- Event) {
	keys, err := p.facade.Keys(ctx)
	if err != nil {
		return
	}

	current := make(map[string]bool, len(keys))
	for _, key := range keys {
		current[key] = true

		e, err := p.facade.Get(ctx, key)
		if err != nil || e == nil {
			continue
		}
		if prev, ok := snapshot[key]; ok && entriesEqual(prev, e) {
			continue
		}
		snapshot[key] = e
		if !emit(ctx, out, Event{Key: key, Entry: copyEntry(e)}) {
			return
		}
	}

	for key := range snapshot {
		if current[key] {
			continue
		}
		delete(snapshot, key)
		if !emit(ctx, out, Event{Key: key, Entry: nil}) {
			return
		}
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	if out == nil {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

func entriesEqual(a, b *Entry) bool {
	return a.Tombstone == b.Tombstone &&
		a.Origin == b.Origin &&
		a.Timestamp == b.Timestamp &&
		bytes.Equal(a.Value, b.Value)
}
