// Package it holds the integration harness and smoke tests: full agents
// running in-process against miniredis sites.
package it

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"kvsync/internal/agent"
	"kvsync/internal/config"
	"kvsync/internal/storage"
)

const bucket = "config"

// Site is one replica: its broker/storage endpoint and the agent serving
// it.
type Site struct {
	ID     string
	Redis  *miniredis.Miniredis
	Agent  *agent.Agent
	Store  *storage.RedisStore
	client *redis.Client
	cancel context.CancelFunc
	done   chan error
}

// Cluster is a set of fully meshed sites.
type Cluster struct {
	Sites []*Site
}

// NewCluster starts n in-process agents, each with its own miniredis,
// fully meshed as peers.
func NewCluster(t *testing.T, n int, durable bool) *Cluster {
	t.Helper()

	type endpoint struct {
		id   string
		addr string
	}

	endpoints := make([]endpoint, n)
	redises := make([]*miniredis.Miniredis, n)
	for i := 0; i < n; i++ {
		redises[i] = miniredis.RunT(t)
		endpoints[i] = endpoint{
			id:   fmt.Sprintf("site-%c", 'a'+i),
			addr: redises[i].Addr(),
		}
	}

	c := &Cluster{}
	for i := 0; i < n; i++ {
		var peers []config.Peer
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			peers = append(peers, config.Peer{ID: endpoints[j].id, Addr: endpoints[j].addr})
		}

		cfg := &config.Config{
			NodeID:            endpoints[i].id,
			Bucket:            bucket,
			LocalAddr:         endpoints[i].addr,
			Peers:             peers,
			Channel:           "ops",
			Durable:           durable,
			ReconcileInterval: 150 * time.Millisecond,
			WatchPollInterval: 20 * time.Millisecond,
		}

		a, err := agent.New(cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("agent %s failed to build: %v", cfg.NodeID, err)
		}

		client := redis.NewClient(&redis.Options{Addr: endpoints[i].addr})
		site := &Site{
			ID:     endpoints[i].id,
			Redis:  redises[i],
			Agent:  a,
			Store:  storage.NewRedisStore(client, bucket),
			client: client,
			done:   make(chan error, 1),
		}

		ctx, cancel := context.WithCancel(context.Background())
		site.cancel = cancel
		go func() { site.done <- a.Run(ctx) }()

		c.Sites = append(c.Sites, site)
	}

	t.Cleanup(func() { c.Stop(t) })

	// Let every subscriber attach before tests start writing.
	time.Sleep(100 * time.Millisecond)
	return c
}

// Stop shuts every agent down and verifies clean exits.
func (c *Cluster) Stop(t *testing.T) {
	t.Helper()
	for _, s := range c.Sites {
		s.cancel()
	}
	for _, s := range c.Sites {
		select {
		case err := <-s.done:
			if err != nil {
				t.Errorf("agent %s exited with %v", s.ID, err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("agent %s did not shut down", s.ID)
		}
		_ = s.Agent.Close()
		_ = s.client.Close()
	}
	c.Sites = nil
}

// Entry reads a key's stored entry on this site.
func (s *Site) Entry(t *testing.T, key string) *storage.Entry {
	t.Helper()
	e, err := s.Store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("site %s get %q: %v", s.ID, key, err)
	}
	return e
}

// Eventually polls cond until it holds or the timeout expires.
func Eventually(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
