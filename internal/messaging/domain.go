package messaging

import "time"

// Message is a direct message between two members of one academy.
type Message struct {
	ID          string     `json:"id"`
	AcademyID   string     `json:"academy_id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Unread reports whether the recipient has not opened the message.
func (m Message) Unread() bool {
	return m.ReadAt == nil
}

// SendInput carries a compose form submission.
type SendInput struct {
	RecipientID    string `validate:"required"`
	Subject        string `validate:"required,max=160"`
	Body           string `validate:"required,max=5000"`
	IdempotencyKey string
}

// Mailbox names a message listing.
type Mailbox string

// Mailboxes of a member.
const (
	Inbox Mailbox = "inbox"
	Sent  Mailbox = "sent"
)
