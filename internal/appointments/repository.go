package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
)

func appointmentKey(id string) string {
	return kv.Key("appointment", id)
}

func academyAppointmentsKey(academyID string) string {
	return kv.Key("academy_appointments", academyID)
}

func userAppointmentsKey(academyID, userID string) string {
	return kv.Key("user_appointments", academyID, userID)
}

// Repository stores appointments with per-academy and per-user timelines
// scored by start time.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// Get loads an appointment by its global ID.
func (r *Repository) Get(ctx context.Context, id string) (Appointment, error) {
	var a Appointment
	if err := r.store.GetJSON(ctx, appointmentKey(id), &a); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Appointment{}, fmt.Errorf("appointment %s: %w", id, shared.ErrNotFound)
		}
		return Appointment{}, err
	}
	return a, nil
}

// Save writes the record and indexes it for the academy and both parties.
func (r *Repository) Save(ctx context.Context, a Appointment) error {
	score := float64(a.StartsAt.Unix())
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(appointmentKey(a.ID), a, 0)
		b.ZAdd(academyAppointmentsKey(a.AcademyID), score, a.ID)
		b.ZAdd(userAppointmentsKey(a.AcademyID, a.CoachID), score, a.ID)
		b.ZAdd(userAppointmentsKey(a.AcademyID, a.AttendeeID), score, a.ID)
		return nil
	})
}

// ListAcademy returns up to limit appointments of academyID, latest start first.
func (r *Repository) ListAcademy(ctx context.Context, academyID string, limit int) ([]Appointment, error) {
	return r.list(ctx, academyAppointmentsKey(academyID), limit)
}

// ListUser returns up to limit appointments userID takes part in within
// academyID, latest start first.
func (r *Repository) ListUser(ctx context.Context, academyID, userID string, limit int) ([]Appointment, error) {
	return r.list(ctx, userAppointmentsKey(academyID, userID), limit)
}

func (r *Repository) list(ctx context.Context, key string, limit int) ([]Appointment, error) {
	ids, err := r.store.ZRevRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = appointmentKey(id)
	}
	return kv.GetMany[Appointment](ctx, r.store, keys)
}
