package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
)

func notificationKey(id string) string {
	return kv.Key("notification", id)
}

func feedKey(userID string) string {
	return kv.Key("notifications", userID)
}

func unreadKey(userID string) string {
	return kv.Key("notifications_unread", userID)
}

// Repository stores notifications in a per-user sorted feed.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// Insert stores n at the head of its owner's feed.
func (r *Repository) Insert(ctx context.Context, n Notification) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(notificationKey(n.ID), n, 0)
		b.ZAdd(feedKey(n.UserID), float64(n.CreatedAt.UnixNano()), n.ID)
		b.SetAdd(unreadKey(n.UserID), n.ID)
		return nil
	})
}

// Get loads a notification.
func (r *Repository) Get(ctx context.Context, id string) (Notification, error) {
	var n Notification
	if err := r.store.GetJSON(ctx, notificationKey(id), &n); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Notification{}, fmt.Errorf("notification %s: %w", id, shared.ErrNotFound)
		}
		return Notification{}, err
	}
	return n, nil
}

// List returns up to limit notifications of userID, newest first.
func (r *Repository) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	ids, err := r.store.ZRevRange(ctx, feedKey(userID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = notificationKey(id)
	}
	return kv.GetMany[Notification](ctx, r.store, keys)
}

// UnreadIDs returns the unread notification IDs of userID.
func (r *Repository) UnreadIDs(ctx context.Context, userID string) ([]string, error) {
	return r.store.SetMembers(ctx, unreadKey(userID))
}

// MarkRead stores the read notifications and clears them from the unread set.
func (r *Repository) MarkRead(ctx context.Context, userID string, list []Notification) error {
	if len(list) == 0 {
		return nil
	}
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		ids := make([]string, len(list))
		for i, n := range list {
			b.SetJSON(notificationKey(n.ID), n, 0)
			ids[i] = n.ID
		}
		b.SetRemove(unreadKey(userID), ids...)
		return nil
	})
}
