package courses

import "time"

// Course is a training group run inside one academy.
type Course struct {
	ID          string    `json:"id"`
	AcademyID   string    `json:"academy_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CoachID     string    `json:"coach_id,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Enrollment links a member of the course's academy to the course.
type Enrollment struct {
	CourseID   string    `json:"course_id"`
	AcademyID  string    `json:"academy_id"`
	UserID     string    `json:"user_id"`
	EnrolledBy string    `json:"enrolled_by"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// UserEnrollment pairs an enrollment with its course.
type UserEnrollment struct {
	Course     Course
	Enrollment Enrollment
}

// CourseInput carries the editable course fields.
type CourseInput struct {
	Title       string `validate:"required,max=120"`
	Description string `validate:"max=2000"`
	CoachID     string
}
