package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const opField = "op"

// RedisConfig wires one agent's view of the broker mesh: it consumes from
// its local endpoint and broadcasts to each peer endpoint. With Durable
// set, operations travel over a Streams consumer group, so a site that was
// offline drains its backlog on return; otherwise plain pub/sub is used
// and gaps are left to the reconciler.
type RedisConfig struct {
	LocalAddr string
	PeerAddrs []string
	Channel   string
	Durable   bool
	Group     string
}

// Redis is a Transport over Redis pub/sub or Streams.
type Redis struct {
	cfg      RedisConfig
	logger   *zap.Logger
	local    *redis.Client
	peers    []*redis.Client
	inbound  chan Delivery
	consumer string

	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Once
}

// NewRedis connects the consume side and starts the inbound loop. The
// returned transport must be closed to release connections.
func NewRedis(cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if cfg.Channel == "" {
		return nil, fmt.Errorf("transport: channel is required")
	}
	if cfg.Group == "" {
		cfg.Group = "kvsync-agents"
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &Redis{
		cfg:      cfg,
		logger:   logger,
		local:    redis.NewClient(&redis.Options{Addr: cfg.LocalAddr}),
		inbound:  make(chan Delivery, 256),
		consumer: "consumer-" + uuid.NewString(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, addr := range cfg.PeerAddrs {
		t.peers = append(t.peers, redis.NewClient(&redis.Options{Addr: addr}))
	}

	if cfg.Durable {
		err := t.local.XGroupCreateMkStream(ctx, cfg.Channel, cfg.Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			cancel()
			return nil, fmt.Errorf("transport: create consumer group: %w", err)
		}
		go t.consumeStream(ctx)
	} else {
		go t.consumePubSub(ctx)
	}

	return t, nil
}

// Inbound returns the delivery channel. It closes when the transport does.
func (t *Redis) Inbound() <-chan Delivery {
	return t.inbound
}

// Broadcast pushes data to every peer endpoint, retrying each with
// exponential backoff while ctx allows. Peers that stay unreachable are
// reported; delivery to them is the reconciler's problem.
func (t *Redis) Broadcast(ctx context.Context, data []byte) error {
	var firstErr error
	for i, peer := range t.peers {
		send := func() error {
			if t.cfg.Durable {
				return peer.XAdd(ctx, &redis.XAddArgs{
					Stream: t.cfg.Channel,
					Values: map[string]interface{}{opField: string(data)},
				}).Err()
			}
			return peer.Publish(ctx, t.cfg.Channel, data).Err()
		}

		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
		if err := backoff.Retry(send, policy); err != nil {
			t.logger.Warn("broadcast to peer failed",
				zap.String("peer", t.cfg.PeerAddrs[i]),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("broadcast to %s: %w", t.cfg.PeerAddrs[i], err)
			}
		}
	}
	return firstErr
}

// Close stops the inbound loop and releases all connections.
func (t *Redis) Close() error {
	t.closeMu.Do(func() {
		t.cancel()
		<-t.done
		_ = t.local.Close()
		for _, p := range t.peers {
			_ = p.Close()
		}
	})
	return nil
}

func (t *Redis) consumePubSub(ctx context.Context) {
	defer close(t.inbound)
	defer close(t.done)

	sub := t.local.Subscribe(ctx, t.cfg.Channel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.deliver(ctx, Delivery{Data: []byte(msg.Payload), ID: uuid.NewString()})
		}
	}
}

func (t *Redis) consumeStream(ctx context.Context) {
	defer close(t.inbound)
	defer close(t.done)

	wait := backoff.NewExponentialBackOff()
	wait.MaxElapsedTime = 0 // reconnect forever

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := t.local.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    t.cfg.Group,
			Consumer: t.consumer,
			Streams:  []string{t.cfg.Channel, ">"},
			Count:    16,
			Block:    time.Second,
		}).Result()
		if err == redis.Nil {
			wait.Reset()
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d := wait.NextBackOff()
			t.logger.Warn("stream read failed, backing off",
				zap.Duration("wait", d), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}
		wait.Reset()

		for _, stream := range res {
			for _, msg := range stream.Messages {
				data, _ := msg.Values[opField].(string)
				t.deliver(ctx, Delivery{Data: []byte(data), ID: msg.ID})
				if err := t.local.XAck(ctx, t.cfg.Channel, t.cfg.Group, msg.ID).Err(); err != nil {
					t.logger.Warn("ack failed", zap.String("id", msg.ID), zap.Error(err))
				}
			}
		}
	}
}

func (t *Redis) deliver(ctx context.Context, d Delivery) {
	select {
	case <-ctx.Done():
	case t.inbound <- d:
	}
}
