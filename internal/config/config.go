// Package config holds the agent's configuration surface. All fields are
// passive inputs to the components; no core logic lives here.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Peer identifies a remote site: its node id and the Redis endpoint
// serving both its storage and its broadcast channel.
type Peer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Config holds one agent's configuration.
type Config struct {
	NodeID            string        `yaml:"node_id"`
	Bucket            string        `yaml:"bucket"`
	LocalAddr         string        `yaml:"local_addr"`
	Peers             []Peer        `yaml:"peers"`
	Channel           string        `yaml:"channel"`
	Durable           bool          `yaml:"durable"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	WatchPollInterval time.Duration `yaml:"watch_poll_interval"`
}

// Defaults fills unset optional fields.
func (c *Config) Defaults() {
	if c.Channel == "" {
		c.Channel = "kvsync.ops"
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 30 * time.Second
	}
	if c.WatchPollInterval <= 0 {
		c.WatchPollInterval = time.Second
	}
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node id is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.LocalAddr == "" {
		return fmt.Errorf("local address is required")
	}
	for _, p := range c.Peers {
		if p.ID == c.NodeID {
			return fmt.Errorf("peer %s duplicates this node's id", p.ID)
		}
	}
	return nil
}

// PeerAddrs returns the peer endpoints in declaration order.
func (c *Config) PeerAddrs() []string {
	addrs := make([]string, 0, len(c.Peers))
	for _, p := range c.Peers {
		addrs = append(addrs, p.Addr)
	}
	return addrs
}

// Load reads a YAML config file, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.Defaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}
