package membership

import (
	"context"
	"errors"
	"sort"

	"github.com/academyhub/academyhub/internal/platform/kv"
)

func membershipKey(academyID, userID string) string {
	return kv.Key("membership", academyID, userID)
}

func userAcademiesKey(userID string) string {
	return kv.Key("user_academies", userID)
}

func academyMembersKey(academyID string) string {
	return kv.Key("academy_members", academyID)
}

// Repository persists memberships with two index sets: academies per user and
// members per academy.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// GetAcademyMembership returns the membership for the pair or nil when absent.
func (r *Repository) GetAcademyMembership(ctx context.Context, academyID, userID string) (*Membership, error) {
	if academyID == "" || userID == "" {
		return nil, nil
	}
	var m Membership
	if err := r.store.GetJSON(ctx, membershipKey(academyID, userID), &m); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetUserAcademyIDs returns the academies userID belongs to, sorted ascending.
func (r *Repository) GetUserAcademyIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.store.SetMembers(ctx, userAcademiesKey(userID))
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// ListUserMemberships returns every membership held by userID.
func (r *Repository) ListUserMemberships(ctx context.Context, userID string) ([]Membership, error) {
	ids, err := r.GetUserAcademyIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = membershipKey(id, userID)
	}
	return kv.GetMany[Membership](ctx, r.store, keys)
}

// ListAcademyMemberIDs returns the user IDs belonging to academyID, sorted.
func (r *Repository) ListAcademyMemberIDs(ctx context.Context, academyID string) ([]string, error) {
	ids, err := r.store.SetMembers(ctx, academyMembersKey(academyID))
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAcademyMembers returns every membership of academyID ordered by user ID.
func (r *Repository) ListAcademyMembers(ctx context.Context, academyID string) ([]Membership, error) {
	ids, err := r.ListAcademyMemberIDs(ctx, academyID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = membershipKey(academyID, id)
	}
	return kv.GetMany[Membership](ctx, r.store, keys)
}

// AddMembership writes the record and both indexes atomically.
func (r *Repository) AddMembership(ctx context.Context, m Membership) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(membershipKey(m.AcademyID, m.UserID), m, 0)
		b.SetAdd(userAcademiesKey(m.UserID), m.AcademyID)
		b.SetAdd(academyMembersKey(m.AcademyID), m.UserID)
		return nil
	})
}

// RemoveMembership deletes the record and both index entries atomically.
func (r *Repository) RemoveMembership(ctx context.Context, academyID, userID string) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.Delete(membershipKey(academyID, userID))
		b.SetRemove(userAcademiesKey(userID), academyID)
		b.SetRemove(academyMembersKey(academyID), userID)
		return nil
	})
}
