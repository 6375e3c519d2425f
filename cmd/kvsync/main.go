// Command kvsync runs one site's replication agent.
//
// Configuration comes from a YAML file (-config) or from flags; flags
// override the file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kvsync/internal/agent"
	"kvsync/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		nodeID     = flag.String("node", "", "this node's id")
		bucket     = flag.String("bucket", "", "bucket to replicate")
		localAddr  = flag.String("local", "", "local Redis endpoint")
		peersStr   = flag.String("peers", "", "peers as id1=addr1,id2=addr2")
		channel    = flag.String("channel", "", "broadcast channel name")
		durable    = flag.Bool("durable", false, "use durable stream delivery")
		reconcile  = flag.Duration("reconcile-interval", 0, "anti-entropy interval")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if err := run(*configPath, *nodeID, *bucket, *localAddr, *peersStr,
		*channel, *durable, *reconcile, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "kvsync: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, nodeID, bucket, localAddr, peersStr, channel string,
	durable bool, reconcile time.Duration, debug bool) error {

	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if nodeID != "" {
		cfg.NodeID = nodeID
	}
	if bucket != "" {
		cfg.Bucket = bucket
	}
	if localAddr != "" {
		cfg.LocalAddr = localAddr
	}
	if peersStr != "" {
		peers, err := config.ParsePeers(peersStr)
		if err != nil {
			return err
		}
		cfg.Peers = peers
	}
	if channel != "" {
		cfg.Channel = channel
	}
	if durable {
		cfg.Durable = true
	}
	if reconcile > 0 {
		cfg.ReconcileInterval = reconcile
	}

	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := agent.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
