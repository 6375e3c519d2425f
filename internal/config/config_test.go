package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "site-b=127.0.0.1:6380",
			want: []Peer{
				{ID: "site-b", Addr: "127.0.0.1:6380"},
			},
		},
		{
			name:  "multiple peers",
			input: "site-b=127.0.0.1:6380,site-c=127.0.0.1:6381",
			want: []Peer{
				{ID: "site-b", Addr: "127.0.0.1:6380"},
				{ID: "site-c", Addr: "127.0.0.1:6381"},
			},
		},
		{
			name:  "with spaces",
			input: "site-b = 127.0.0.1:6380 , site-c = 127.0.0.1:6381",
			want: []Peer{
				{ID: "site-b", Addr: "127.0.0.1:6380"},
				{ID: "site-c", Addr: "127.0.0.1:6381"},
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "site-b:127.0.0.1:6380",
			wantErr: true,
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:6380",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "site-b=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePeers() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePeers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	c := &Config{NodeID: "site-a", Bucket: "config", LocalAddr: "127.0.0.1:6379"}
	c.Defaults()

	if c.Channel != "kvsync.ops" {
		t.Errorf("Expected default channel, got %q", c.Channel)
	}
	if c.ReconcileInterval != 30*time.Second {
		t.Errorf("Expected default reconcile interval, got %v", c.ReconcileInterval)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing node id", Config{Bucket: "b", LocalAddr: "a"}},
		{"missing bucket", Config{NodeID: "n", LocalAddr: "a"}},
		{"missing local addr", Config{NodeID: "n", Bucket: "b"}},
		{"peer duplicates self", Config{NodeID: "n", Bucket: "b", LocalAddr: "a",
			Peers: []Peer{{ID: "n", Addr: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	data := `
node_id: site-a
bucket: config
local_addr: 127.0.0.1:6379
channel: ops
durable: true
reconcile_interval: 5s
peers:
  - id: site-b
    addr: 127.0.0.1:6380
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.NodeID != "site-a" || c.Channel != "ops" || !c.Durable {
		t.Errorf("Unexpected config: %+v", c)
	}
	if c.ReconcileInterval != 5*time.Second {
		t.Errorf("Expected 5s reconcile interval, got %v", c.ReconcileInterval)
	}
	if got := c.PeerAddrs(); len(got) != 1 || got[0] != "127.0.0.1:6380" {
		t.Errorf("Unexpected peer addrs: %v", got)
	}
	// Unset optional fields still default.
	if c.WatchPollInterval != time.Second {
		t.Errorf("Expected default watch poll interval, got %v", c.WatchPollInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
