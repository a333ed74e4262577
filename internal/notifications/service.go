package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/academyhub/academyhub/internal/shared"
)

// DefaultPageSize bounds feed listings.
const DefaultPageSize = 50

// RepositoryPort defines notification storage.
type RepositoryPort interface {
	Insert(ctx context.Context, n Notification) error
	Get(ctx context.Context, id string) (Notification, error)
	List(ctx context.Context, userID string, limit int) ([]Notification, error)
	UnreadIDs(ctx context.Context, userID string) ([]string, error)
	MarkRead(ctx context.Context, userID string, list []Notification) error
}

// MemberLister lists the members of an academy.
type MemberLister interface {
	MemberIDs(ctx context.Context, academyID string) ([]string, error)
}

// Enqueuer hands broadcasts to the background worker.
type Enqueuer interface {
	EnqueueBroadcast(ctx context.Context, b Broadcast) error
}

// Service manages per-user notification feeds.
type Service struct {
	repo     RepositoryPort
	members  MemberLister
	queue    Enqueuer
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. queue may be nil, in which case broadcasts
// fan out inline.
func NewService(repo RepositoryPort, members MemberLister, queue Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: members, queue: queue, validate: validator.New(), logger: logger, now: time.Now}
}

// Notify stores n for its user.
func (s *Service) Notify(ctx context.Context, n Notification) (Notification, error) {
	if n.UserID == "" || strings.TrimSpace(n.Title) == "" {
		return Notification{}, errors.New("notifications: user and title required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Kind == "" {
		n.Kind = KindSystem
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// List returns the newest notifications of userID.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	return s.repo.List(ctx, userID, limit)
}

// UnreadCount returns how many notifications userID has not read.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	ids, err := s.repo.UnreadIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MarkRead marks one notification read. Notifications of other users are
// reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("notification %s: %w", id, shared.ErrNotFound)
	}
	if !n.Unread() {
		return nil
	}
	now := s.now().UTC()
	n.ReadAt = &now
	return s.repo.MarkRead(ctx, userID, []Notification{n})
}

// MarkAllRead marks every unread notification of userID read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	ids, err := s.repo.UnreadIDs(ctx, userID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	list := make([]Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.repo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return err
		}
		n.ReadAt = &now
		list = append(list, n)
	}
	return s.repo.MarkRead(ctx, userID, list)
}

// Broadcast validates b and queues the fan-out to every member of academyID.
func (s *Service) Broadcast(ctx context.Context, academyID, title, body, senderID string) (Broadcast, error) {
	b := Broadcast{
		ID:        uuid.NewString(),
		AcademyID: academyID,
		Title:     strings.TrimSpace(title),
		Body:      strings.TrimSpace(body),
		SenderID:  senderID,
	}
	if err := s.validate.Struct(b); err != nil {
		return Broadcast{}, err
	}
	if academyID == "" {
		return Broadcast{}, fmt.Errorf("academy: %w", shared.ErrNotFound)
	}
	if s.queue == nil {
		_, err := s.FanOut(ctx, b)
		return b, err
	}
	if err := s.queue.EnqueueBroadcast(ctx, b); err != nil {
		return Broadcast{}, fmt.Errorf("enqueue broadcast: %w", err)
	}
	s.logger.Info("broadcast queued", slog.String("broadcast_id", b.ID), slog.String("academy_id", academyID))
	return b, nil
}

// FanOut creates one notification per academy member. Notification IDs derive
// from the broadcast ID so a retried task does not notify anyone twice.
func (s *Service) FanOut(ctx context.Context, b Broadcast) (int, error) {
	memberIDs, err := s.members.MemberIDs(ctx, b.AcademyID)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, userID := range memberIDs {
		if userID == b.SenderID {
			continue
		}
		id := b.ID + ":" + userID
		if _, err := s.repo.Get(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, shared.ErrNotFound) {
			return created, err
		}
		_, err := s.Notify(ctx, Notification{
			ID:        id,
			UserID:    userID,
			AcademyID: b.AcademyID,
			Kind:      KindBroadcast,
			Title:     b.Title,
			Body:      b.Body,
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
