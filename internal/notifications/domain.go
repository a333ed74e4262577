package notifications

import "time"

// Notification is one in-app notice for a user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	AcademyID string     `json:"academy_id,omitempty"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	Link      string     `json:"link,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// Unread reports whether the notification has not been read.
func (n Notification) Unread() bool {
	return n.ReadAt == nil
}

// Broadcast asks the worker to notify every member of an academy.
type Broadcast struct {
	ID        string `json:"id"`
	AcademyID string `json:"academy_id"`
	Title     string `json:"title" validate:"required,max=120"`
	Body      string `json:"body" validate:"max=2000"`
	SenderID  string `json:"sender_id"`
}

// Kinds of notification.
const (
	KindBroadcast   = "broadcast"
	KindMessage     = "message"
	KindSystem      = "system"
	KindAppointment = "appointment"
)
