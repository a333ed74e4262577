package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/platform/kv"
)

type record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newStore(t *testing.T) (*kv.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.New(client, "test"), mr
}

func TestStoreJSONRoundTripUsesPrefix(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, kv.Key("record", "1"), record{ID: "1", Name: "one"}, 0))
	assert.True(t, mr.Exists("test:record:1"))

	var got record
	require.NoError(t, store.GetJSON(ctx, kv.Key("record", "1"), &got))
	assert.Equal(t, "one", got.Name)

	err := store.GetJSON(ctx, kv.Key("record", "missing"), &got)
	assert.True(t, errors.Is(err, kv.ErrNotFound))
}

func TestGetManySkipsMissingKeys(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, "record:a", record{ID: "a"}, 0))
	require.NoError(t, store.SetJSON(ctx, "record:c", record{ID: "c"}, 0))

	items, err := kv.GetMany[record](ctx, store, []string{"record:a", "record:b", "record:c"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[1].ID)
}

func TestTxAppliesAllWrites(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	err := store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON("record:1", record{ID: "1"}, 0)
		b.SetAdd("records", "1")
		b.ZAdd("timeline", 10, "1")
		return nil
	})
	require.NoError(t, err)

	members, err := store.SetMembers(ctx, "records")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, members)

	ordered, err := store.ZRevRange(ctx, "timeline", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ordered)
}

func TestTxAbortsWhenCallbackFails(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON("record:1", record{ID: "1"}, 0)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ok, err := store.Exists(ctx, "record:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := kv.Dial(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, client.Ping(context.Background()).Err())

	addr := mr.Addr()
	mr.Close()
	_, err = kv.Dial(context.Background(), addr)
	assert.Error(t, err)
}
