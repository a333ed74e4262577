package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/academyhub/academyhub/internal/notifications"
	"github.com/academyhub/academyhub/internal/shared"
)

const listLimit = 200

var (
	// ErrSlotTaken is returned when the coach already has a scheduled
	// appointment overlapping the requested slot.
	ErrSlotTaken = errors.New("appointments: coach is already booked for that slot")
	// ErrInPast is returned for a booking that starts before now.
	ErrInPast = errors.New("appointments: start time is in the past")
	// ErrAlreadyCancelled is returned when cancelling twice.
	ErrAlreadyCancelled = errors.New("appointments: already cancelled")
)

// RepositoryPort defines appointment storage.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (Appointment, error)
	Save(ctx context.Context, a Appointment) error
	ListAcademy(ctx context.Context, academyID string, limit int) ([]Appointment, error)
	ListUser(ctx context.Context, academyID, userID string, limit int) ([]Appointment, error)
}

// MembershipGuard checks academy membership.
type MembershipGuard interface {
	RequireUserInAcademy(ctx context.Context, academyID, userID string) error
}

// Notifier delivers an in-app notice.
type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification) (notifications.Notification, error)
}

// Service books and cancels appointments inside one academy. An appointment
// of another academy is reported as not found.
type Service struct {
	repo     RepositoryPort
	members  MembershipGuard
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. notifier is optional.
func NewService(repo RepositoryPort, members MembershipGuard, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: members, notifier: notifier, validate: validator.New(), logger: logger, now: time.Now}
}

// List returns the appointments of academyID.
func (s *Service) List(ctx context.Context, academyID string) ([]Appointment, error) {
	if academyID == "" {
		return nil, nil
	}
	return s.repo.ListAcademy(ctx, academyID, listLimit)
}

// ListForUser returns the appointments userID takes part in after the
// membership check.
func (s *Service) ListForUser(ctx context.Context, academyID, userID string) ([]Appointment, error) {
	if err := s.members.RequireUserInAcademy(ctx, academyID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListUser(ctx, academyID, userID, listLimit)
}

// Get returns id when it belongs to academyID.
func (s *Service) Get(ctx context.Context, academyID, id string) (Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if academyID == "" || a.AcademyID != academyID {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, shared.ErrNotFound)
	}
	return a, nil
}

// Book schedules an appointment. Coach and attendee must both belong to
// academyID and the coach must be free for the whole slot.
func (s *Service) Book(ctx context.Context, academyID string, in BookInput, actorID string) (Appointment, error) {
	in.Notes = strings.TrimSpace(in.Notes)
	if err := s.validate.Struct(in); err != nil {
		return Appointment{}, err
	}
	if academyID == "" {
		return Appointment{}, fmt.Errorf("academy: %w", shared.ErrNotFound)
	}
	now := s.now().UTC()
	if in.StartsAt.Before(now) {
		return Appointment{}, ErrInPast
	}
	if err := s.members.RequireUserInAcademy(ctx, academyID, in.CoachID); err != nil {
		return Appointment{}, err
	}
	if err := s.members.RequireUserInAcademy(ctx, academyID, in.AttendeeID); err != nil {
		return Appointment{}, err
	}
	a := Appointment{
		ID:         uuid.NewString(),
		AcademyID:  academyID,
		CoachID:    in.CoachID,
		AttendeeID: in.AttendeeID,
		StartsAt:   in.StartsAt.UTC(),
		Minutes:    in.Minutes,
		Notes:      in.Notes,
		Status:     StatusScheduled,
		CreatedBy:  actorID,
		CreatedAt:  now,
	}
	booked, err := s.repo.ListUser(ctx, academyID, in.CoachID, listLimit)
	if err != nil {
		return Appointment{}, err
	}
	for _, other := range booked {
		if other.Status == StatusScheduled && other.StartsAt.Before(a.EndsAt()) && a.StartsAt.Before(other.EndsAt()) {
			return Appointment{}, ErrSlotTaken
		}
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return Appointment{}, err
	}
	s.notify(ctx, a, a.AttendeeID, "Appointment booked for "+a.StartsAt.Format("2006-01-02 15:04"))
	return a, nil
}

// Cancel marks the appointment cancelled and tells the other party.
func (s *Service) Cancel(ctx context.Context, academyID, id, actorID string) (Appointment, error) {
	a, err := s.Get(ctx, academyID, id)
	if err != nil {
		return Appointment{}, err
	}
	if a.Status == StatusCancelled {
		return Appointment{}, ErrAlreadyCancelled
	}
	now := s.now().UTC()
	a.Status = StatusCancelled
	a.CancelledBy = actorID
	a.CancelledAt = &now
	if err := s.repo.Save(ctx, a); err != nil {
		return Appointment{}, err
	}
	recipient := a.AttendeeID
	if actorID == a.AttendeeID {
		recipient = a.CoachID
	}
	s.notify(ctx, a, recipient, "Appointment cancelled for "+a.StartsAt.Format("2006-01-02 15:04"))
	return a, nil
}

func (s *Service) notify(ctx context.Context, a Appointment, userID, title string) {
	if s.notifier == nil {
		return
	}
	_, err := s.notifier.Notify(ctx, notifications.Notification{
		UserID:    userID,
		AcademyID: a.AcademyID,
		Kind:      notifications.KindAppointment,
		Title:     title,
		Link:      "/appointments",
	})
	if err != nil {
		s.logger.Warn("notify appointment", slog.String("appointment_id", a.ID), slog.Any("error", err))
	}
}
