package appointments_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/appointments"
	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/testing/kvtest"
	"github.com/academyhub/academyhub/internal/view"
)

type directory struct {
	members *membership.Service
}

func (d directory) MemberIDs(ctx context.Context, academyID string) ([]string, error) {
	return d.members.MemberIDs(ctx, academyID)
}

func (d directory) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = strings.ToUpper(id)
	}
	return names, nil
}

type handlerFixture struct {
	svc     *appointments.Service
	handler *appointments.Handler
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	store := kvtest.NewStore(t)
	members := membership.NewService(membership.NewRepository(store), nil)
	ctx := context.Background()
	for academy, roster := range map[string][]string{"A1": {"coach", "parent", "player", "kid"}, "A2": {"far-coach", "far-parent"}} {
		for _, u := range roster {
			_, err := members.Add(ctx, academy, u, rbac.RolePlayer, "admin")
			require.NoError(t, err)
		}
	}
	svc := appointments.NewService(appointments.NewRepository(store), members, nil, nil)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	guard := authz.NewGuard(rbac.NewService(rbac.NewRepository(store)), nil, "en")
	respond := &authz.Responder{
		DefaultLocale: "en",
		NotFound: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no such page", http.StatusNotFound)
		},
	}
	return handlerFixture{svc: svc, handler: appointments.NewHandler(nil, svc, directory{members: members}, templates, nil, guard, respond)}
}

func (f handlerFixture) serve(req *http.Request, principal *authz.Principal, academyID string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithLocale(r.Context(), "en")
			ctx = shared.ContextWithAcademy(ctx, academyID)
			ctx = authz.ContextWithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/en/appointments", f.handler.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func as(id string, role rbac.UserRole) *authz.Principal {
	return &authz.Principal{UserID: id, Role: role, Active: true}
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func bookForm(coach, attendee string, hour int) url.Values {
	return url.Values{
		"coach_id":    {coach},
		"attendee_id": {attendee},
		"starts_at":   {slot(hour).Format("2006-01-02T15:04")},
		"minutes":     {"60"},
	}
}

func TestKidCannotOpenAppointments(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/en/appointments", nil), as("kid", rbac.RoleKid), "A1")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))
}

func TestPlayerCannotBook(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.serve(postForm("/en/appointments", bookForm("coach", "player", 10)), as("player", rbac.RolePlayer), "A1")

	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))
	list, err := f.svc.List(context.Background(), "A1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParentBooksOnlyForThemselves(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	rec := f.serve(postForm("/en/appointments", bookForm("coach", "player", 10)), as("parent", rbac.RoleParent), "A1")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/appointments", rec.Header().Get("Location"))
	mine, err := f.svc.ListForUser(ctx, "A1", "parent")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "coach", mine[0].CoachID)
	theirs, err := f.svc.ListForUser(ctx, "A1", "player")
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestCoachSeesAcademyScheduleOnly(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	_, err := f.svc.Book(ctx, "A1", appointments.BookInput{CoachID: "coach", AttendeeID: "player", StartsAt: slot(10), Minutes: 60}, "coach")
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, "A2", appointments.BookInput{CoachID: "far-coach", AttendeeID: "far-parent", StartsAt: slot(10), Minutes: 60}, "far-coach")
	require.NoError(t, err)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/en/appointments", nil), as("coach", rbac.RoleCoach), "A1")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "PLAYER")
	assert.NotContains(t, body, "FAR-PARENT")
}

func TestOverlappingBookingIsConflict(t *testing.T) {
	f := newHandlerFixture(t)
	_, err := f.svc.Book(context.Background(), "A1", appointments.BookInput{CoachID: "coach", AttendeeID: "player", StartsAt: slot(10), Minutes: 60}, "coach")
	require.NoError(t, err)

	rec := f.serve(postForm("/en/appointments", bookForm("coach", "parent", 10)), as("coach", rbac.RoleCoach), "A1")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), appointments.ErrSlotTaken.Error())
}

func TestCancelRequiresParticipationOrManage(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "A1", appointments.BookInput{CoachID: "coach", AttendeeID: "player", StartsAt: slot(10), Minutes: 60}, "coach")
	require.NoError(t, err)

	rec := f.serve(postForm("/en/appointments/"+a.ID+"/cancel", nil), as("parent", rbac.RoleParent), "A1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.serve(postForm("/en/appointments/"+a.ID+"/cancel", nil), as("far-coach", rbac.RoleCoach), "A2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	got, err := f.svc.Get(ctx, "A1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusScheduled, got.Status)

	rec = f.serve(postForm("/en/appointments/"+a.ID+"/cancel", nil), as("player", rbac.RolePlayer), "A1")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	got, err = f.svc.Get(ctx, "A1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusCancelled, got.Status)
}
