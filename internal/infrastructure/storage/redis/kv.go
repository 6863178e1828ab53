package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KV adapts a Redis client to the shared durable key/value contract.
// It backs the per-origin storage tier: every tab of the same origin reads
// and writes the same keyspace with no locking, so last writer wins.
// Keys are namespaced under a fixed prefix to keep the agent's keyspace
// apart from anything else on the instance.
type KV struct {
	client *redis.Client
	prefix string
}

const keyNamespace = "aditi:origin:"

// NewKV wraps the given Redis client.
func NewKV(client *redis.Client) *KV {
	return &KV{client: client, prefix: keyNamespace}
}

func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get: %w", err)
	}
	return v, true, nil
}

// Set writes the value with no TTL. Freshness is the caller's concern.
func (s *KV) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// Keys scans for keys with the given prefix and returns them with the
// namespace stripped.
func (s *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("kv keys: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.prefix):])
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
