package shared

import (
	"context"
	"errors"
	"time"

	"github.com/academyhub/academyhub/internal/platform/kv"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers processed request keys.
type IdempotencyStore struct {
	store *kv.Store
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(store *kv.Store) *IdempotencyStore {
	return &IdempotencyStore{store: store}
}

// CheckAndInsert ensures key uniqueness per module. A repeated key returns
// ErrDuplicate.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	ok, err := s.store.SetNX(ctx, kv.Key("idempotency", module, key), time.Now().UTC().Format(time.RFC3339), idempotencyTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

// Release forgets key so a request whose work failed after the claim can be
// retried.
func (s *IdempotencyStore) Release(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	return s.store.Delete(ctx, kv.Key("idempotency", module, key))
}
