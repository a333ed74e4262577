// Package kv provides the JSON key-value store used by every repository.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("kv: not found")

// Store wraps a Redis client and namespaces every key with a prefix.
type Store struct {
	client *redis.Client
	prefix string
}

// New returns a Store. An empty prefix leaves keys untouched.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Key joins key parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Client exposes the underlying Redis client.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Store) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = s.key(k)
	}
	return out
}

// Get returns the raw string stored at key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

// GetJSON loads key into dest.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) error {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("kv: get %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores value under key. A zero ttl keeps the key forever.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, s.keys(keys)...).Err()
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetAdd adds members to the set stored at key.
func (s *Store) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SAdd(ctx, s.key(key), toAny(members)...).Err()
}

// SetRemove removes members from the set stored at key.
func (s *Store) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SRem(ctx, s.key(key), toAny(members)...).Err()
}

// SetMembers returns every member of the set stored at key.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, s.key(key)).Result()
}

// SetIsMember reports whether member belongs to the set stored at key.
func (s *Store) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, s.key(key), member).Result()
}

// ZAdd adds member with score to the sorted set stored at key.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.client.ZAdd(ctx, s.key(key), redis.Z{Score: score, Member: member}).Err()
}

// ZRevRange returns members ordered from the highest score, inclusive bounds.
func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.ZRevRange(ctx, s.key(key), start, stop).Result()
}

// ZCard returns the size of the sorted set stored at key.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, s.key(key)).Result()
}

// ZIsMember reports whether member is in the sorted set stored at key.
func (s *Store) ZIsMember(ctx context.Context, key, member string) (bool, error) {
	err := s.client.ZScore(ctx, s.key(key), member).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ZRemove removes members from the sorted set stored at key.
func (s *Store) ZRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.ZRem(ctx, s.key(key), toAny(members)...).Err()
}

// GetMany loads every key into a T, skipping keys that do not exist.
func GetMany[T any](ctx context.Context, s *Store, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, s.keys(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: mget: %w", err)
	}
	out := make([]T, 0, len(values))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			return nil, fmt.Errorf("kv: decode %s: %w", keys[i], err)
		}
		out = append(out, item)
	}
	return out, nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// SetNX stores value under key only when key is absent.
func (s *Store) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), value, ttl).Result()
}
