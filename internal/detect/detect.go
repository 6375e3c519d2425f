package detect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kvsync/internal/clock"
	"kvsync/internal/op"
	"kvsync/internal/storage"
	"kvsync/internal/transport"
	"kvsync/internal/version"
)

// Detector classifies storage-level change events and originates
// operations for edits that bypassed the agent.
type Detector struct {
	bucket   string
	nodeID   string
	clock    *clock.Clock
	versions *version.Store
	store    storage.Facade
	watcher  storage.Watcher
	tr       transport.Transport
	logger   *zap.Logger
}

// New wires a detector. All collaborators are injected; the detector owns
// none of them.
func New(bucket, nodeID string, clk *clock.Clock, versions *version.Store,
	store storage.Facade, watcher storage.Watcher, tr transport.Transport,
	logger *zap.Logger) *Detector {

	return &Detector{
		bucket:   bucket,
		nodeID:   nodeID,
		clock:    clk,
		versions: versions,
		store:    store,
		watcher:  watcher,
		tr:       tr,
		logger:   logger,
	}
}

// Seed primes the version store and the clock from the current contents of
// the facade. It runs before watching begins so a freshly started agent
// never treats pre-existing state as younger than it is, and never
// broadcasts a storm of "new" operations for data that predates the
// process.
func (d *Detector) Seed(ctx context.Context) error {
	keys, err := d.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	for _, key := range keys {
		e, err := d.store.Get(ctx, key)
		if err != nil {
			d.logger.Warn("seed skipped key", zap.String("key", key), zap.Error(err))
			continue
		}
		if e == nil || !e.HasProvenance() {
			continue
		}
		d.clock.Observe(e.Timestamp)
		if _, err := d.versions.Commit(d.bucket, key, e.Version(), nil); err != nil {
			return fmt.Errorf("seed %q: %w", key, err)
		}
	}

	d.logger.Info("seeded from existing state",
		zap.Int("keys", len(keys)), zap.Int64("clock", d.clock.Now()))
	return nil
}

// Run consumes change events until ctx is cancelled or the watcher's
// channel closes. Each event is fully handled, broadcast included, before
// the next is taken, so cancellation never abandons a classified edit.
func (d *Detector) Run(ctx context.Context) error {
	events := d.watcher.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.handle(ctx, ev)
		}
	}
}

// LocalPut writes through the CRDT path: stamp, persist with provenance,
// record the version, broadcast. This is the only sanctioned way for
// in-process callers to mutate local state.
func (d *Detector) LocalPut(ctx context.Context, key string, value []byte) error {
	o := op.Operation{
		Kind:      op.Put,
		Bucket:    d.bucket,
		Key:       key,
		Value:     append([]byte(nil), value...),
		Timestamp: d.clock.Tick(),
		NodeID:    d.nodeID,
	}
	return d.originate(ctx, o)
}

// LocalDelete records a tombstone through the CRDT path.
func (d *Detector) LocalDelete(ctx context.Context, key string) error {
	o := op.Operation{
		Kind:      op.Delete,
		Bucket:    d.bucket,
		Key:       key,
		Timestamp: d.clock.Tick(),
		NodeID:    d.nodeID,
	}
	return d.originate(ctx, o)
}

func (d *Detector) handle(ctx context.Context, ev storage.Event) {
	// An entry with provenance was already produced by an agent, local or
	// remote. Observe and record, never re-broadcast: treating it as a
	// brand-new edit would replicate forever.
	if ev.Entry != nil && ev.Entry.HasProvenance() {
		d.clock.Observe(ev.Entry.Timestamp)
		if _, err := d.versions.Commit(d.bucket, ev.Key, ev.Entry.Version(), nil); err != nil {
			d.logger.Warn("version update failed", zap.String("key", ev.Key), zap.Error(err))
		}
		return
	}

	// Out-of-band edit: a manual client or CLI write bypassing the agent.
	o := op.Operation{
		Bucket:    d.bucket,
		Key:       ev.Key,
		Timestamp: d.clock.Tick(),
		NodeID:    d.nodeID,
	}
	if ev.Entry == nil || ev.Entry.Tombstone {
		o.Kind = op.Delete
	} else {
		o.Kind = op.Put
		o.Value = append([]byte(nil), ev.Entry.Value...)
	}

	if err := d.originate(ctx, o); err != nil {
		d.logger.Warn("adopting out-of-band edit failed; next change or reconcile retries",
			zap.String("key", ev.Key), zap.Error(err))
	}
}

// originate persists o with this node's provenance, records its version
// and broadcasts it.
func (d *Detector) originate(ctx context.Context, o op.Operation) error {
	prov := storage.Provenance{NodeID: o.NodeID, Timestamp: o.Timestamp}

	won, err := d.versions.Commit(d.bucket, o.Key, o.Version(), func() error {
		if o.Kind == op.Delete {
			return d.store.Delete(ctx, o.Key, prov)
		}
		return d.store.Put(ctx, o.Key, o.Value, prov)
	})
	if err != nil {
		return fmt.Errorf("originate %q: %w", o.Key, err)
	}
	if !won {
		// A freshly ticked timestamp outranks everything observed so far;
		// losing here means a concurrent higher version was accepted while
		// we were writing. Nothing to broadcast.
		d.logger.Debug("local write superseded before broadcast", zap.String("key", o.Key))
		return nil
	}

	data, err := op.Encode(o)
	if err != nil {
		return fmt.Errorf("originate %q: %w", o.Key, err)
	}
	if err := d.tr.Broadcast(ctx, data); err != nil {
		d.logger.Warn("broadcast failed; reconciliation will repair the gap",
			zap.String("key", o.Key), zap.Error(err))
	}
	return nil
}
