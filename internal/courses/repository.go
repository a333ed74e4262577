package courses

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
)

func courseKey(id string) string {
	return kv.Key("course", id)
}

func academyCoursesKey(academyID string) string {
	return kv.Key("academy_courses", academyID)
}

func enrollmentKey(courseID, userID string) string {
	return kv.Key("enrollment", courseID, userID)
}

func courseEnrollmentsKey(courseID string) string {
	return kv.Key("course_enrollments", courseID)
}

func userEnrollmentsKey(academyID, userID string) string {
	return kv.Key("user_enrollments", academyID, userID)
}

// Repository stores courses and enrollments in the KV store.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// GetCourse loads a course by its global ID.
func (r *Repository) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	if err := r.store.GetJSON(ctx, courseKey(id), &c); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Course{}, fmt.Errorf("course %s: %w", id, shared.ErrNotFound)
		}
		return Course{}, err
	}
	return c, nil
}

// ListCourses returns the courses of academyID ordered by title.
func (r *Repository) ListCourses(ctx context.Context, academyID string) ([]Course, error) {
	ids, err := r.store.SetMembers(ctx, academyCoursesKey(academyID))
	if err != nil {
		return nil, err
	}
	return r.getCourses(ctx, ids)
}

func (r *Repository) getCourses(ctx context.Context, ids []string) ([]Course, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = courseKey(id)
	}
	list, err := kv.GetMany[Course](ctx, r.store, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Title < list[j].Title })
	return list, nil
}

// SaveCourse stores the course and indexes it under its academy.
func (r *Repository) SaveCourse(ctx context.Context, c Course) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(courseKey(c.ID), c, 0)
		b.SetAdd(academyCoursesKey(c.AcademyID), c.ID)
		return nil
	})
}

// GetEnrollment returns the enrollment or nil when absent.
func (r *Repository) GetEnrollment(ctx context.Context, courseID, userID string) (*Enrollment, error) {
	var e Enrollment
	if err := r.store.GetJSON(ctx, enrollmentKey(courseID, userID), &e); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// SaveEnrollment stores the enrollment and both indexes.
func (r *Repository) SaveEnrollment(ctx context.Context, e Enrollment) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(enrollmentKey(e.CourseID, e.UserID), e, 0)
		b.SetAdd(courseEnrollmentsKey(e.CourseID), e.UserID)
		b.SetAdd(userEnrollmentsKey(e.AcademyID, e.UserID), e.CourseID)
		return nil
	})
}

// DeleteEnrollment removes the enrollment and both indexes.
func (r *Repository) DeleteEnrollment(ctx context.Context, e Enrollment) error {
	return r.store.Tx(ctx, func(b *kv.Batch) error {
		b.Delete(enrollmentKey(e.CourseID, e.UserID))
		b.SetRemove(courseEnrollmentsKey(e.CourseID), e.UserID)
		b.SetRemove(userEnrollmentsKey(e.AcademyID, e.UserID), e.CourseID)
		return nil
	})
}

// ListCourseEnrollments returns every enrollment of courseID.
func (r *Repository) ListCourseEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	userIDs, err := r.store.SetMembers(ctx, courseEnrollmentsKey(courseID))
	if err != nil {
		return nil, err
	}
	sort.Strings(userIDs)
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = enrollmentKey(courseID, id)
	}
	return kv.GetMany[Enrollment](ctx, r.store, keys)
}

// ListUserEnrollments returns userID's enrollments within academyID.
func (r *Repository) ListUserEnrollments(ctx context.Context, academyID, userID string) ([]UserEnrollment, error) {
	courseIDs, err := r.store.SetMembers(ctx, userEnrollmentsKey(academyID, userID))
	if err != nil {
		return nil, err
	}
	list, err := r.getCourses(ctx, courseIDs)
	if err != nil {
		return nil, err
	}
	out := make([]UserEnrollment, 0, len(list))
	for _, c := range list {
		e, err := r.GetEnrollment(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		if e == nil {
			continue
		}
		out = append(out, UserEnrollment{Course: c, Enrollment: *e})
	}
	return out, nil
}
