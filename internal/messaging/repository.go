package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
)

func messageKey(id string) string {
	return kv.Key("message", id)
}

func mailboxKey(box Mailbox, academyID, userID string) string {
	return kv.Key("mailbox", string(box), academyID, userID)
}

func unreadKey(academyID, userID string) string {
	return kv.Key("messages_unread", academyID, userID)
}

// Repository stores messages and per-member mailboxes.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// Insert stores m in the sender's sent box and the recipient's inbox.
func (r *Repository) Insert(ctx context.Context, m Message) error {
	score := float64(m.CreatedAt.UnixNano())
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(messageKey(m.ID), m, 0)
		b.ZAdd(mailboxKey(Sent, m.AcademyID, m.SenderID), score, m.ID)
		b.ZAdd(mailboxKey(Inbox, m.AcademyID, m.RecipientID), score, m.ID)
		b.SetAdd(unreadKey(m.AcademyID, m.RecipientID), m.ID)
		return nil
	})
}

// Get loads a message.
func (r *Repository) Get(ctx context.Context, id string) (Message, error) {
	var m Message
	if err := r.store.GetJSON(ctx, messageKey(id), &m); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Message{}, fmt.Errorf("message %s: %w", id, shared.ErrNotFound)
		}
		return Message{}, err
	}
	return m, nil
}

// List returns up to limit messages of a mailbox, newest first.
func (r *Repository) List(ctx context.Context, box Mailbox, academyID, userID string, limit int) ([]Message, error) {
	ids, err := r.store.ZRevRange(ctx, mailboxKey(box, academyID, userID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
	}
	return kv.GetMany[Message](ctx, r.store, keys)
}

// UnreadIDs returns the unread inbox message IDs of userID.
func (r *Repository) UnreadIDs(ctx context.Context, academyID, userID string) ([]string, error) {
	return r.store.SetMembers(ctx, unreadKey(academyID, userID))
}

// MarkRead stores the read message and clears it from the unread set.
func (r *Repository) MarkRead(ctx context.Context, m Message) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(messageKey(m.ID), m, 0)
		b.SetRemove(unreadKey(m.AcademyID, m.RecipientID), m.ID)
		return nil
	})
}

// RemoveFromMailbox drops m from one member's mailbox. The record is deleted
// once neither party still holds it.
func (r *Repository) RemoveFromMailbox(ctx context.Context, m Message, userID string) error {
	keep := false
	for _, other := range []struct {
		box  Mailbox
		user string
	}{{Sent, m.SenderID}, {Inbox, m.RecipientID}} {
		if other.user == userID {
			continue
		}
		held, err := r.store.ZIsMember(ctx, mailboxKey(other.box, m.AcademyID, other.user), m.ID)
		if err != nil {
			return err
		}
		keep = keep || held
	}
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		if userID == m.SenderID {
			b.ZRemove(mailboxKey(Sent, m.AcademyID, userID), m.ID)
		}
		if userID == m.RecipientID {
			b.ZRemove(mailboxKey(Inbox, m.AcademyID, userID), m.ID)
			b.SetRemove(unreadKey(m.AcademyID, userID), m.ID)
		}
		if !keep {
			b.Delete(messageKey(m.ID))
		}
		return nil
	})
}
