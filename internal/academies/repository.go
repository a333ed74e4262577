package academies

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
)

// ErrSlugTaken is returned when another academy uses the slug.
var ErrSlugTaken = errors.New("academies: slug already in use")

const academiesIndexKey = "academies"

func academyKey(id string) string {
	return kv.Key("academy", id)
}

func slugKey(slug string) string {
	return kv.Key("academy_slug", slug)
}

// Repository stores academies in the KV store.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// Get loads an academy.
func (r *Repository) Get(ctx context.Context, id string) (Academy, error) {
	var a Academy
	if err := r.store.GetJSON(ctx, academyKey(id), &a); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Academy{}, fmt.Errorf("academy %s: %w", id, shared.ErrNotFound)
		}
		return Academy{}, err
	}
	return a, nil
}

// GetMany loads the given academies ordered by ID, skipping missing ones.
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]Academy, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = academyKey(id)
	}
	list, err := kv.GetMany[Academy](ctx, r.store, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// ListIDs returns every academy ID, sorted.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := r.store.SetMembers(ctx, academiesIndexKey)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Insert claims the slug and stores the academy.
func (r *Repository) Insert(ctx context.Context, a Academy) error {
	ok, err := r.store.SetNX(ctx, slugKey(a.Slug), a.ID, 0)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlugTaken
	}
	err = r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(academyKey(a.ID), a, 0)
		b.SetAdd(academiesIndexKey, a.ID)
		return nil
	})
	if err != nil {
		_ = r.store.Delete(ctx, slugKey(a.Slug))
		return err
	}
	return nil
}
