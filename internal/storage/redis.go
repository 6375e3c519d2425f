package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

// Hash fields holding one key's state. Provenance lives beside the value
// so it survives without any agent running.
const (
	fieldValue  = "val"
	fieldOrigin = "origin"
	fieldTS     = "ts"
	fieldDead   = "dead"
)

// RedisStore is a Facade backed by Redis. Each key maps to one hash under
// "kv:<bucket>:"; tombstones keep the hash with dead=1 and no value field.
// A plain string SET or a bare HSET of val by an external client shows up
// as an entry without provenance, which is exactly how the change detector
// recognizes out-of-band edits.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a facade for one bucket on the given client.
func NewRedisStore(client *redis.Client, bucket string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "kv:" + bucket + ":",
	}
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, prov Provenance) error {
	k := s.prefix + key

	// Replace any raw string value left by an external SET.
	if typ, err := s.client.Type(ctx, k).Result(); err == nil && typ == "string" {
		if err := s.client.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	err := s.client.HSet(ctx, k, map[string]interface{}{
		fieldValue:  string(value),
		fieldOrigin: prov.NodeID,
		fieldTS:     prov.Timestamp,
		fieldDead:   0,
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: put %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string, prov Provenance) error {
	k := s.prefix + key

	if typ, err := s.client.Type(ctx, k).Result(); err == nil && typ == "string" {
		if err := s.client.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	err := s.client.HSet(ctx, k, map[string]interface{}{
		fieldOrigin: prov.NodeID,
		fieldTS:     prov.Timestamp,
		fieldDead:   1,
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: delete %q: %v", ErrUnavailable, key, err)
	}
	if err := s.client.HDel(ctx, k, fieldValue).Err(); err != nil {
		return fmt.Errorf("%w: delete %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	k := s.prefix + key

	fields, err := s.client.HGetAll(ctx, k).Result()
	if err != nil {
		if strings.HasPrefix(err.Error(), "WRONGTYPE") {
			return s.getRaw(ctx, k)
		}
		return nil, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	e := &Entry{
		Value:     []byte(fields[fieldValue]),
		Tombstone: fields[fieldDead] == "1",
		Origin:    fields[fieldOrigin],
	}
	if ts := fields[fieldTS]; ts != "" {
		e.Timestamp, _ = strconv.ParseInt(ts, 10, 64)
	}
	if e.Tombstone {
		e.Value = nil
	}
	return e, nil
}

// getRaw reads a key an external client wrote with a plain SET. The entry
// has no provenance.
func (s *RedisStore) getRaw(ctx context.Context, k string) (*Entry, error) {
	val, err := s.client.Get(ctx, k).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Entry{Value: []byte(val)}, nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 512).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
