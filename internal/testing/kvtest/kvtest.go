// Package kvtest provides a KV store backed by an in-process Redis.
package kvtest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/academyhub/academyhub/internal/platform/kv"
	_ "github.com/academyhub/academyhub/internal/testing/guard"
)

// NewStore starts miniredis for the test and returns a prefixed store.
func NewStore(t testing.TB) *kv.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.New(client, "test")
}

// NewServer starts miniredis and returns it with a store, for tests that need
// to control time or inspect keys.
func NewServer(t testing.TB) (*miniredis.Miniredis, *kv.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, kv.New(client, "test")
}
