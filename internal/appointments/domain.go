package appointments

import "time"

// Status of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

// Appointment is a one-to-one session between a coach and a member of the
// same academy.
type Appointment struct {
	ID          string     `json:"id"`
	AcademyID   string     `json:"academy_id"`
	CoachID     string     `json:"coach_id"`
	AttendeeID  string     `json:"attendee_id"`
	StartsAt    time.Time  `json:"starts_at"`
	Minutes     int        `json:"minutes"`
	Notes       string     `json:"notes,omitempty"`
	Status      Status     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledBy string     `json:"cancelled_by,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// EndsAt returns the end of the slot.
func (a Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.Minutes) * time.Minute)
}

// Involves reports whether userID is the coach or the attendee.
func (a Appointment) Involves(userID string) bool {
	return userID != "" && (a.CoachID == userID || a.AttendeeID == userID)
}

// BookInput carries the fields of a booking form.
type BookInput struct {
	CoachID    string    `validate:"required"`
	AttendeeID string    `validate:"required,nefield=CoachID"`
	StartsAt   time.Time `validate:"required"`
	Minutes    int       `validate:"min=15,max=240"`
	Notes      string    `validate:"max=1000"`
}
