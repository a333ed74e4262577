package courses_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/courses"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/testing/kvtest"
)

func setup(t *testing.T) (*courses.Service, *membership.Service) {
	t.Helper()
	store := kvtest.NewStore(t)
	members := membership.NewService(membership.NewRepository(store), nil)
	return courses.NewService(courses.NewRepository(store), members), members
}

func TestCourseIsScopedToAcademy(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	c, err := svc.CreateCourse(ctx, "A1", courses.CourseInput{Title: "U12 Football"}, "admin")
	require.NoError(t, err)

	got, err := svc.GetCourse(ctx, "A1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "U12 Football", got.Title)

	_, err = svc.GetCourse(ctx, "A2", c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	list, err := svc.ListCourses(ctx, "A2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateCourseValidates(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.CreateCourse(context.Background(), "A1", courses.CourseInput{}, "admin")
	var verrs validator.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestCreateCourseRejectsForeignCoach(t *testing.T) {
	svc, members := setup(t)
	ctx := context.Background()
	_, err := members.Add(ctx, "A2", "coach-1", rbac.RoleCoach, "admin")
	require.NoError(t, err)

	_, err = svc.CreateCourse(ctx, "A1", courses.CourseInput{Title: "Swim", CoachID: "coach-1"}, "admin")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEnrollRequiresMembership(t *testing.T) {
	svc, members := setup(t)
	ctx := context.Background()
	c, err := svc.CreateCourse(ctx, "A1", courses.CourseInput{Title: "Tennis"}, "admin")
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, "A1", c.ID, "kid-1", "coach")
	assert.ErrorIs(t, err, membership.ErrNotMember)

	_, err = members.Add(ctx, "A1", "kid-1", rbac.RoleKid, "admin")
	require.NoError(t, err)
	e, err := svc.Enroll(ctx, "A1", c.ID, "kid-1", "coach")
	require.NoError(t, err)
	assert.Equal(t, "coach", e.EnrolledBy)

	again, err := svc.Enroll(ctx, "A1", c.ID, "kid-1", "someone-else")
	require.NoError(t, err)
	assert.Equal(t, "coach", again.EnrolledBy)

	mine, err := svc.ListUserEnrollments(ctx, "A1", "kid-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c.ID, mine[0].Course.ID)

	roster, err := svc.ListCourseEnrollments(ctx, "A1", c.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)

	require.NoError(t, svc.Unenroll(ctx, "A1", c.ID, "kid-1"))
	mine, err = svc.ListUserEnrollments(ctx, "A1", "kid-1")
	require.NoError(t, err)
	assert.Empty(t, mine)

	assert.ErrorIs(t, svc.Unenroll(ctx, "A1", c.ID, "kid-1"), shared.ErrNotFound)
}

func TestListUserEnrollmentsOutsideAcademy(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.ListUserEnrollments(context.Background(), "A1", "stranger")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
