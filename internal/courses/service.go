package courses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/academyhub/academyhub/internal/shared"
)

// RepositoryPort defines data access for courses.
type RepositoryPort interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	ListCourses(ctx context.Context, academyID string) ([]Course, error)
	SaveCourse(ctx context.Context, c Course) error
	GetEnrollment(ctx context.Context, courseID, userID string) (*Enrollment, error)
	SaveEnrollment(ctx context.Context, e Enrollment) error
	DeleteEnrollment(ctx context.Context, e Enrollment) error
	ListCourseEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)
	ListUserEnrollments(ctx context.Context, academyID, userID string) ([]UserEnrollment, error)
}

// MembershipGuard is the tenancy check run before touching a user's data.
type MembershipGuard interface {
	RequireUserInAcademy(ctx context.Context, academyID, userID string) error
}

// Service implements academy-scoped course operations. Every lookup takes the
// academy in scope; a course of another academy is reported as not found.
type Service struct {
	repo     RepositoryPort
	members  MembershipGuard
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, members MembershipGuard) *Service {
	return &Service{repo: repo, members: members, validate: validator.New(), now: time.Now}
}

// ListCourses returns the courses of academyID.
func (s *Service) ListCourses(ctx context.Context, academyID string) ([]Course, error) {
	if academyID == "" {
		return nil, nil
	}
	return s.repo.ListCourses(ctx, academyID)
}

// GetCourse returns courseID when it belongs to academyID.
func (s *Service) GetCourse(ctx context.Context, academyID, courseID string) (Course, error) {
	c, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if academyID == "" || c.AcademyID != academyID {
		return Course{}, fmt.Errorf("course %s: %w", courseID, shared.ErrNotFound)
	}
	return c, nil
}

// CreateCourse adds a course to academyID. A coach must be a member.
func (s *Service) CreateCourse(ctx context.Context, academyID string, in CourseInput, actorID string) (Course, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return Course{}, err
	}
	if academyID == "" {
		return Course{}, fmt.Errorf("academy: %w", shared.ErrNotFound)
	}
	if in.CoachID != "" {
		if err := s.members.RequireUserInAcademy(ctx, academyID, in.CoachID); err != nil {
			return Course{}, err
		}
	}
	c := Course{
		ID:          uuid.NewString(),
		AcademyID:   academyID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		CoachID:     in.CoachID,
		CreatedBy:   actorID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.SaveCourse(ctx, c); err != nil {
		return Course{}, err
	}
	return c, nil
}

// Enroll adds userID to the course. The user must belong to academyID.
func (s *Service) Enroll(ctx context.Context, academyID, courseID, userID, actorID string) (Enrollment, error) {
	c, err := s.GetCourse(ctx, academyID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if err := s.members.RequireUserInAcademy(ctx, academyID, userID); err != nil {
		return Enrollment{}, err
	}
	existing, err := s.repo.GetEnrollment(ctx, c.ID, userID)
	if err != nil {
		return Enrollment{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	e := Enrollment{CourseID: c.ID, AcademyID: academyID, UserID: userID, EnrolledBy: actorID, EnrolledAt: s.now().UTC()}
	if err := s.repo.SaveEnrollment(ctx, e); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// Unenroll removes userID from the course.
func (s *Service) Unenroll(ctx context.Context, academyID, courseID, userID string) error {
	c, err := s.GetCourse(ctx, academyID, courseID)
	if err != nil {
		return err
	}
	e, err := s.repo.GetEnrollment(ctx, c.ID, userID)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("enrollment: %w", shared.ErrNotFound)
	}
	return s.repo.DeleteEnrollment(ctx, *e)
}

// ListCourseEnrollments returns the enrollments of a course in academyID.
func (s *Service) ListCourseEnrollments(ctx context.Context, academyID, courseID string) ([]Enrollment, error) {
	c, err := s.GetCourse(ctx, academyID, courseID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCourseEnrollments(ctx, c.ID)
}

// ListUserEnrollments returns userID's enrollments within academyID after the
// membership check.
func (s *Service) ListUserEnrollments(ctx context.Context, academyID, userID string) ([]UserEnrollment, error) {
	if err := s.members.RequireUserInAcademy(ctx, academyID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListUserEnrollments(ctx, academyID, userID)
}
