// Package agent wires the sync components into one running process: the
// change-watch loop, the operation-apply loop and the reconciliation
// timer, all sharing one clock and one version store. Everything is
// injected through constructors; there are no package-level singletons,
// so tests run several independent agents in a single process.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kvsync/internal/apply"
	"kvsync/internal/clock"
	"kvsync/internal/config"
	"kvsync/internal/detect"
	"kvsync/internal/repair"
	"kvsync/internal/storage"
	"kvsync/internal/transport"
	"kvsync/internal/version"
)

// Agent is one site's replication process.
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	clock    *clock.Clock
	versions *version.Store

	localClient *redis.Client
	peerClients []*redis.Client
	tr          transport.Transport

	detector   *detect.Detector
	applier    *apply.Applier
	reconciler *repair.Reconciler
}

// New builds an agent from configuration. The returned agent holds open
// connections; call Run and then Close.
func New(cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	a := &Agent{
		cfg:      cfg,
		logger:   logger.With(zap.String("node", cfg.NodeID)),
		clock:    clock.New(),
		versions: version.NewStore(),
	}

	a.localClient = redis.NewClient(&redis.Options{Addr: cfg.LocalAddr})
	store := storage.NewRedisStore(a.localClient, cfg.Bucket)
	watcher := storage.NewPoller(store, cfg.WatchPollInterval)

	tr, err := transport.NewRedis(transport.RedisConfig{
		LocalAddr: cfg.LocalAddr,
		PeerAddrs: cfg.PeerAddrs(),
		Channel:   cfg.Channel,
		Durable:   cfg.Durable,
	}, a.logger)
	if err != nil {
		_ = a.localClient.Close()
		return nil, fmt.Errorf("agent: %w", err)
	}
	a.tr = tr

	var peers []repair.Peer
	for _, p := range cfg.Peers {
		client := redis.NewClient(&redis.Options{Addr: p.Addr})
		a.peerClients = append(a.peerClients, client)
		peers = append(peers, repair.Peer{
			ID:    p.ID,
			Store: storage.NewRedisStore(client, cfg.Bucket),
		})
	}

	a.detector = detect.New(cfg.Bucket, cfg.NodeID, a.clock, a.versions,
		store, watcher, a.tr, a.logger)
	a.applier = apply.New(cfg.Bucket, a.clock, a.versions, store, a.tr, a.logger)
	a.reconciler = repair.New(cfg.Bucket, store, peers, a.clock, a.versions,
		cfg.ReconcileInterval, a.logger)

	return a, nil
}

// Run seeds from existing state, then drives the three loops until ctx is
// cancelled. It returns nil on a clean shutdown.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.detector.Seed(ctx); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	a.logger.Info("agent started",
		zap.String("bucket", a.cfg.Bucket),
		zap.Int("peers", len(a.cfg.Peers)),
		zap.Bool("durable", a.cfg.Durable))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.detector.Run(gctx) })
	g.Go(func() error { return a.applier.Run(gctx) })
	g.Go(func() error { return a.reconciler.Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// LocalPut writes through the CRDT path, the only sanctioned way for
// in-process callers to mutate local state.
func (a *Agent) LocalPut(ctx context.Context, key string, value []byte) error {
	return a.detector.LocalPut(ctx, key, value)
}

// LocalDelete records a deletion through the CRDT path.
func (a *Agent) LocalDelete(ctx context.Context, key string) error {
	return a.detector.LocalDelete(ctx, key)
}

// ReconcileNow runs one reconcile cycle outside the timer, for callers
// that want convergence on demand.
func (a *Agent) ReconcileNow(ctx context.Context) error {
	return a.reconciler.ReconcileOnce(ctx)
}

// Close releases the transport and every Redis connection.
func (a *Agent) Close() error {
	var firstErr error
	if a.tr != nil {
		if err := a.tr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.localClient != nil {
		if err := a.localClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, c := range a.peerClients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.logger.Info("agent stopped")
	return firstErr
}
