package messaging

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

const pageSize = 50

// RepositoryPort defines message storage.
type RepositoryPort interface {
	Insert(ctx context.Context, m Message) error
	Get(ctx context.Context, id string) (Message, error)
	List(ctx context.Context, box Mailbox, academyID, userID string, limit int) ([]Message, error)
	UnreadIDs(ctx context.Context, academyID, userID string) ([]string, error)
	MarkRead(ctx context.Context, m Message) error
	RemoveFromMailbox(ctx context.Context, m Message, userID string) error
}

// MembershipGuard checks academy membership.
type MembershipGuard interface {
	RequireUserInAcademy(ctx context.Context, academyID, userID string) error
}

// Notifier delivers an in-app notice to the recipient.
type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification) (notifications.Notification, error)
}

// Deduper rejects replayed form submissions.
type Deduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Service sends and reads direct messages inside one academy.
type Service struct {
	repo     RepositoryPort
	members  MembershipGuard
	notifier Notifier
	dedupe   Deduper
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. notifier and dedupe are optional.
func NewService(repo RepositoryPort, members MembershipGuard, notifier Notifier, dedupe Deduper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: members, notifier: notifier, dedupe: dedupe, validate: validator.New(), logger: logger, now: time.Now}
}

// Send delivers a message from senderID. Both parties must belong to
// academyID; otherwise the recipient is reported as not found. A repeated
// idempotency key returns shared.ErrDuplicate without sending again. The key is
// released when the message cannot be stored.
func (s *Service) Send(ctx context.Context, academyID, senderID string, in SendInput) (Message, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if err := s.validate.Struct(in); err != nil {
		return Message{}, err
	}
	if in.RecipientID == senderID {
		return Message{}, fmt.Errorf("recipient %s: %w", in.RecipientID, shared.ErrNotFound)
	}
	if err := s.members.RequireUserInAcademy(ctx, academyID, senderID); err != nil {
		return Message{}, err
	}
	if err := s.members.RequireUserInAcademy(ctx, academyID, in.RecipientID); err != nil {
		return Message{}, err
	}
	var claimed string
	if s.dedupe != nil && in.IdempotencyKey != "" {
		claimed = senderID + ":" + in.IdempotencyKey
		if err := s.dedupe.CheckAndInsert(ctx, claimed, "messages"); err != nil {
			return Message{}, err
		}
	}
	m := Message{
		ID:          uuid.NewString(),
		AcademyID:   academyID,
		SenderID:    senderID,
		RecipientID: in.RecipientID,
		Subject:     in.Subject,
		Body:        in.Body,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		if claimed != "" {
			if rerr := s.dedupe.Release(ctx, claimed, "messages"); rerr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", claimed), slog.Any("error", rerr))
			}
		}
		return Message{}, err
	}
	if s.notifier != nil {
		_, err := s.notifier.Notify(ctx, notifications.Notification{
			UserID:    m.RecipientID,
			AcademyID: academyID,
			Kind:      notifications.KindMessage,
			Title:     "New message: " + m.Subject,
			Link:      "/messages/" + m.ID,
		})
		if err != nil {
			s.logger.Warn("notify message recipient", slog.String("message_id", m.ID), slog.Any("error", err))
		}
	}
	return m, nil
}

// Mailbox lists the messages userID holds in box for academyID.
func (s *Service) Mailbox(ctx context.Context, box Mailbox, academyID, userID string) ([]Message, error) {
	if box != Inbox && box != Sent {
		return nil, fmt.Errorf("mailbox %s: %w", box, shared.ErrNotFound)
	}
	return s.repo.List(ctx, box, academyID, userID, pageSize)
}

// UnreadCount returns the number of unread inbox messages.
func (s *Service) UnreadCount(ctx context.Context, academyID, userID string) (int, error) {
	ids, err := s.repo.UnreadIDs(ctx, academyID, userID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Get returns a message visible to userID in academyID. Messages of other
// academies or other members are reported as not found.
func (s *Service) Get(ctx context.Context, academyID, userID, id string) (Message, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if m.AcademyID != academyID || (m.SenderID != userID && m.RecipientID != userID) {
		return Message{}, fmt.Errorf("message %s: %w", id, shared.ErrNotFound)
	}
	return m, nil
}

// Open returns the message and marks it read when userID is the recipient.
func (s *Service) Open(ctx context.Context, academyID, userID, id string) (Message, error) {
	m, err := s.Get(ctx, academyID, userID, id)
	if err != nil {
		return Message{}, err
	}
	if m.RecipientID == userID && m.Unread() {
		now := s.now().UTC()
		m.ReadAt = &now
		if err := s.repo.MarkRead(ctx, m); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

// Delete removes the message from userID's mailboxes.
func (s *Service) Delete(ctx context.Context, academyID, userID, id string) error {
	m, err := s.Get(ctx, academyID, userID, id)
	if err != nil {
		return err
	}
	return s.repo.RemoveFromMailbox(ctx, m, userID)
}

// IsDuplicate reports whether err came from a replayed submission.
func IsDuplicate(err error) bool {
	return errors.Is(err, shared.ErrDuplicate)
}
