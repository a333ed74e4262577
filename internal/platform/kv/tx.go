package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Batch queues writes that are applied together by Tx.
type Batch struct {
	ctx   context.Context
	store *Store
	pipe  redis.Pipeliner
	err   error
}

// Tx runs fn and applies its queued writes in a single MULTI/EXEC.
// Nothing is written when fn or any queued encode fails.
func (s *Store) Tx(ctx context.Context, fn func(b *Batch) error) error {
	var batchErr error
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		b := &Batch{ctx: ctx, store: s, pipe: pipe}
		if err := fn(b); err != nil {
			batchErr = err
			return err
		}
		if b.err != nil {
			batchErr = b.err
			return b.err
		}
		return nil
	})
	if batchErr != nil {
		return batchErr
	}
	if err != nil {
		return fmt.Errorf("kv: tx: %w", err)
	}
	return nil
}

// SetJSON queues a JSON write.
func (b *Batch) SetJSON(key string, value any, ttl time.Duration) {
	if b.err != nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		b.err = fmt.Errorf("kv: encode %s: %w", key, err)
		return
	}
	b.pipe.Set(b.ctx, b.store.key(key), data, ttl)
}

// Delete queues key removal.
func (b *Batch) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.pipe.Del(b.ctx, b.store.keys(keys)...)
}

// SetAdd queues a set insert.
func (b *Batch) SetAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.SAdd(b.ctx, b.store.key(key), toAny(members)...)
}

// SetRemove queues a set removal.
func (b *Batch) SetRemove(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.SRem(b.ctx, b.store.key(key), toAny(members)...)
}

// ZAdd queues a sorted set insert.
func (b *Batch) ZAdd(key string, score float64, member string) {
	b.pipe.ZAdd(b.ctx, b.store.key(key), redis.Z{Score: score, Member: member})
}

// ZRemove queues a sorted set removal.
func (b *Batch) ZRemove(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.ZRem(b.ctx, b.store.key(key), toAny(members)...)
}
