package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kvsync/internal/clock"
	"kvsync/internal/storage"
	"kvsync/internal/version"
)

// Peer is a remote site reachable through its own storage facade.
type Peer struct {
	ID    string
	Store storage.Facade
}

// Reconciler runs the periodic pull/compare/push cycle between the local
// site and each peer.
type Reconciler struct {
	bucket   string
	local    storage.Facade
	peers    []Peer
	clock    *clock.Clock
	versions *version.Store
	interval time.Duration
	logger   *zap.Logger
}

// New wires a reconciler. interval <= 0 defaults to 30 seconds.
func New(bucket string, local storage.Facade, peers []Peer, clk *clock.Clock,
	versions *version.Store, interval time.Duration, logger *zap.Logger) *Reconciler {

	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		bucket:   bucket,
		local:    local,
		peers:    peers,
		clock:    clk,
		versions: versions,
		interval: interval,
		logger:   logger,
	}
}

// Run executes cycles on the configured interval until ctx is cancelled.
// Cycles run on the timer goroutine itself, so one can never overlap the
// next: ticks that fire mid-cycle are coalesced by the ticker.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Partially-converged state is safe: the order is
				// idempotent and the next tick finishes the job.
				r.logger.Warn("reconcile cycle aborted", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce runs one full cycle against every peer.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	for _, peer := range r.peers {
		if err := r.reconcilePeer(ctx, peer); err != nil {
			return fmt.Errorf("peer %s: %w", peer.ID, err)
		}
	}
	return nil
}

func (r *Reconciler) reconcilePeer(ctx context.Context, peer Peer) error {
	localKeys, err := r.local.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list local keys: %w", err)
	}
	peerKeys, err := peer.Store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list peer keys: %w", err)
	}

	union := make(map[string]bool, len(localKeys)+len(peerKeys))
	for _, k := range localKeys {
		union[k] = true
	}
	for _, k := range peerKeys {
		union[k] = true
	}

	var pulled, pushed, skipped int
	for key := range union {
		p, q, err := r.reconcileKey(ctx, peer, key)
		if err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				skipped++
				r.logger.Debug("skipping key this cycle",
					zap.String("key", key), zap.Error(err))
				continue
			}
			return fmt.Errorf("key %q: %w", key, err)
		}
		pulled += p
		pushed += q
	}

	if pulled > 0 || pushed > 0 || skipped > 0 {
		r.logger.Info("reconcile cycle finished",
			zap.String("peer", peer.ID),
			zap.Int("keys", len(union)),
			zap.Int("pulled", pulled),
			zap.Int("pushed", pushed),
			zap.Int("skipped", skipped))
	}
	return nil
}

// reconcileKey converges one key between the two sites. Versions come from
// stored provenance, never from a freshly minted timestamp: re-stamping at
// reconcile time would make "whoever scans last" win and discard original
// write intent. Returns (pulled, pushed) counts of 0 or 1.
func (r *Reconciler) reconcileKey(ctx context.Context, peer Peer, key string) (int, int, error) {
	le, err := r.local.Get(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	pe, err := peer.Store.Get(ctx, key)
	if err != nil {
		return 0, 0, err
	}

	switch {
	case le == nil && pe == nil:
		return 0, 0, nil

	case le == nil:
		// Only the peer holds the key: unconditional pull.
		if err := r.pull(ctx, key, pe); err != nil {
			return 0, 0, err
		}
		return 1, 0, nil

	case pe == nil:
		if err := r.push(ctx, peer, key, le); err != nil {
			return 0, 0, err
		}
		return 0, 1, nil
	}

	lv, pv := le.Version(), pe.Version()
	switch {
	case version.Wins(pv, lv):
		if err := r.pull(ctx, key, pe); err != nil {
			return 0, 0, err
		}
		return 1, 0, nil
	case version.Wins(lv, pv):
		if err := r.push(ctx, peer, key, le); err != nil {
			return 0, 0, err
		}
		return 0, 1, nil
	default:
		// Same version on both sides.
		return 0, 0, nil
	}
}

// pull writes the peer's entry into the local site, preserving its
// provenance, and records the winner locally.
func (r *Reconciler) pull(ctx context.Context, key string, e *storage.Entry) error {
	r.clock.Observe(e.Timestamp)
	_, err := r.versions.Commit(r.bucket, key, e.Version(), func() error {
		return writeEntry(ctx, r.local, key, e)
	})
	return err
}

// push writes the local entry into the peer site as-is. The local version
// store already reflects the winner; committing again is a no-op.
func (r *Reconciler) push(ctx context.Context, peer Peer, key string, e *storage.Entry) error {
	if err := writeEntry(ctx, peer.Store, key, e); err != nil {
		return err
	}
	_, err := r.versions.Commit(r.bucket, key, e.Version(), nil)
	return err
}

func writeEntry(ctx context.Context, f storage.Facade, key string, e *storage.Entry) error {
	prov := storage.Provenance{NodeID: e.Origin, Timestamp: e.Timestamp}
	if e.Tombstone {
		return f.Delete(ctx, key, prov)
	}
	return f.Put(ctx, key, e.Value, prov)
}
