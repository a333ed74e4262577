package auth

import (
	"context"
	"errors"
	"time"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/users"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, s LoginSession) error
	SessionExists(ctx context.Context, id string) (bool, error)
	DeleteSession(ctx context.Context, id string) error
}

// UserFinder looks accounts up by email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

// KVRepository implements Repository on the KV store.
type KVRepository struct {
	store *kv.Store
	users UserFinder
}

// NewRepository constructs a KV repository.
func NewRepository(store *kv.Store, finder UserFinder) *KVRepository {
	return &KVRepository{store: store, users: finder}
}

func sessionKey(id string) string {
	return kv.Key("login_session", id)
}

// FindByEmail fetches a user by email.
func (r *KVRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &User{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash, IsActive: u.Active}, nil
}

// CreateSession stores the login session until it expires.
func (r *KVRepository) CreateSession(ctx context.Context, s LoginSession) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return errors.New("auth: session already expired")
	}
	return r.store.SetJSON(ctx, sessionKey(s.ID), s, ttl)
}

// SessionExists reports whether the login session is still recorded.
func (r *KVRepository) SessionExists(ctx context.Context, id string) (bool, error) {
	return r.store.Exists(ctx, sessionKey(id))
}

// DeleteSession removes a login session.
func (r *KVRepository) DeleteSession(ctx context.Context, id string) error {
	return r.store.Delete(ctx, sessionKey(id))
}

var _ Repository = (*KVRepository)(nil)
