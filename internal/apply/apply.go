package apply

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"kvsync/internal/clock"
	"kvsync/internal/op"
	"kvsync/internal/storage"
	"kvsync/internal/transport"
	"kvsync/internal/version"
)

// Applier runs the inbound side of the operation stream.
type Applier struct {
	bucket   string
	clock    *clock.Clock
	versions *version.Store
	store    storage.Facade
	tr       transport.Transport
	logger   *zap.Logger
}

// New wires an applier over the shared clock and version store.
func New(bucket string, clk *clock.Clock, versions *version.Store,
	store storage.Facade, tr transport.Transport, logger *zap.Logger) *Applier {

	return &Applier{
		bucket:   bucket,
		clock:    clk,
		versions: versions,
		store:    store,
		tr:       tr,
		logger:   logger,
	}
}

// Run consumes deliveries until ctx is cancelled or the transport closes.
func (a *Applier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-a.tr.Inbound():
			if !ok {
				return nil
			}
			a.Apply(ctx, d)
		}
	}
}

// Apply processes one delivery. Malformed payloads are logged and dropped;
// losing operations are discarded silently; a transiently unavailable
// store is logged and the operation skipped, to be healed by re-delivery
// or the next reconcile cycle.
func (a *Applier) Apply(ctx context.Context, d transport.Delivery) {
	o, err := op.Decode(d.Data)
	if err != nil {
		a.logger.Warn("dropping malformed operation",
			zap.String("delivery", d.ID), zap.Error(err))
		return
	}
	if o.Bucket != a.bucket {
		return
	}

	a.clock.Observe(o.Timestamp)

	prov := storage.Provenance{NodeID: o.NodeID, Timestamp: o.Timestamp}
	won, err := a.versions.Commit(a.bucket, o.Key, o.Version(), func() error {
		if o.Kind == op.Delete {
			return a.store.Delete(ctx, o.Key, prov)
		}
		return a.store.Put(ctx, o.Key, o.Value, prov)
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			a.logger.Warn("storage unavailable, skipping operation",
				zap.String("key", o.Key), zap.Error(err))
			return
		}
		a.logger.Error("apply failed", zap.String("key", o.Key), zap.Error(err))
		return
	}
	if won {
		a.logger.Debug("applied remote operation",
			zap.String("key", o.Key),
			zap.String("version", o.Version().String()),
			zap.Bool("tombstone", o.Kind == op.Delete))
	}
}
