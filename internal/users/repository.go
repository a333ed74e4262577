package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
)

// ErrEmailTaken is returned when an email is already registered.
var ErrEmailTaken = errors.New("users: email already registered")

func userKey(id string) string {
	return kv.Key("user", id)
}

func emailKey(email string) string {
	return kv.Key("user_email", normalizeEmail(email))
}

const usersIndexKey = "users"

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository stores users in the KV store with an email index.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a repository.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// GetUser loads a user by ID.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	if err := r.store.GetJSON(ctx, userKey(id), &u); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return User{}, fmt.Errorf("user %s: %w", id, shared.ErrNotFound)
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByEmail resolves the email index and loads the user.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	id, err := r.store.Get(ctx, emailKey(email))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return User{}, fmt.Errorf("user email: %w", shared.ErrNotFound)
		}
		return User{}, err
	}
	return r.GetUser(ctx, id)
}

// GetUsers loads the given users, skipping missing IDs.
func (r *Repository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	list, err := kv.GetMany[User](ctx, r.store, keys)
	if err != nil {
		return nil, err
	}
	sortUsers(list)
	return list, nil
}

// ListUsers returns all users ordered by name.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	ids, err := r.store.SetMembers(ctx, usersIndexKey)
	if err != nil {
		return nil, err
	}
	return r.GetUsers(ctx, ids)
}

// InsertUser claims the email and stores the record.
func (r *Repository) InsertUser(ctx context.Context, u User) error {
	ok, err := r.store.SetNX(ctx, emailKey(u.Email), u.ID, 0)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEmailTaken
	}
	err = r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(userKey(u.ID), u, 0)
		b.SetAdd(usersIndexKey, u.ID)
		return nil
	})
	if err != nil {
		_ = r.store.Delete(ctx, emailKey(u.Email))
		return err
	}
	return nil
}

// SaveUser overwrites an existing record. The email is immutable.
func (r *Repository) SaveUser(ctx context.Context, u User) error {
	return r.store.SetJSON(ctx, userKey(u.ID), u, 0)
}

// DeleteUser removes the record, its email claim and its index entry.
func (r *Repository) DeleteUser(ctx context.Context, u User) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.Delete(userKey(u.ID))
		b.Delete(emailKey(u.Email))
		b.SetRemove(usersIndexKey, u.ID)
		return nil
	})
}

func sortUsers(list []User) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name == list[j].Name {
			return list[i].ID < list[j].ID
		}
		return list[i].Name < list[j].Name
	})
}
