package academies_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/academies"
	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/membership"
	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/testing/kvtest"
	"github.com/academyhub/academyhub/internal/users"
	"github.com/academyhub/academyhub/internal/view"
)

type fixture struct {
	store   *kv.Store
	svc     *academies.Service
	members *membership.Service
	users   *users.Service
	audit   *shared.AuditLogger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := kvtest.NewStore(t)
	members := membership.NewService(membership.NewRepository(store), nil)
	userSvc := users.NewService(users.NewRepository(store), members, nil, nil)
	audit := shared.NewAuditLogger(store)
	return fixture{
		store:   store,
		svc:     academies.NewService(academies.NewRepository(store), members, userSvc, audit, nil),
		members: members,
		users:   userSvc,
		audit:   audit,
	}
}

func (f fixture) academy(t *testing.T, name, slug string) academies.Academy {
	t.Helper()
	a, err := f.svc.Create(context.Background(), academies.CreateInput{Name: name, Slug: slug}, "admin-1")
	require.NoError(t, err)
	return a
}

func (f fixture) user(t *testing.T, email string, role rbac.UserRole, academyIDs ...string) *authz.Principal {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.CreateUser(ctx, users.CreateInput{Email: email, Name: email, Password: "password1", Role: role})
	require.NoError(t, err)
	for _, id := range academyIDs {
		_, err := f.members.Add(ctx, id, u.ID, role, "admin-1")
		require.NoError(t, err)
	}
	return &authz.Principal{UserID: u.ID, Email: u.Email, Name: u.Name, Role: role, Active: true}
}

func TestCreateValidatesAndClaimsSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, academies.CreateInput{Name: " North FC ", Slug: "North-FC"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "North FC", a.Name)
	assert.Equal(t, "north-fc", a.Slug)

	_, err = f.svc.Create(ctx, academies.CreateInput{Name: "Other", Slug: "north-fc"}, "admin-1")
	assert.ErrorIs(t, err, academies.ErrSlugTaken)

	_, err = f.svc.Create(ctx, academies.CreateInput{Name: "Bad", Slug: "no spaces"}, "admin-1")
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, academies.CreateInput{Slug: "nameless"}, "admin-1")
	var verrs validator.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	logs, err := f.audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "academy.create", logs[0].Action)
}

func TestSelectHidesForeignAcademies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.academy(t, "North", "north")
	south := f.academy(t, "South", "south")
	coach := f.user(t, "coach@test.local", rbac.RoleCoach, north.ID)
	admin := f.user(t, "admin@test.local", rbac.RoleAdmin)

	got, err := f.svc.Select(ctx, coach, north.ID)
	require.NoError(t, err)
	assert.Equal(t, north.ID, got.ID)

	_, err = f.svc.Select(ctx, coach, south.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	got, err = f.svc.Select(ctx, admin, south.ID)
	require.NoError(t, err)
	assert.Equal(t, south.ID, got.ID)

	_, err = f.svc.Select(ctx, admin, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCurrentFallsBackToSmallestAcademy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.academy(t, "One", "one")
	a2 := f.academy(t, "Two", "two")
	first, second := a1.ID, a2.ID
	if second < first {
		first, second = second, first
	}
	parent := f.user(t, "parent@test.local", rbac.RoleParent, first, second)
	loner := f.user(t, "loner@test.local", rbac.RoleKid)
	admin := f.user(t, "admin@test.local", rbac.RoleAdmin)

	id, err := f.svc.Current(ctx, parent, second)
	require.NoError(t, err)
	assert.Equal(t, second, id)

	id, err = f.svc.Current(ctx, parent, "stale")
	require.NoError(t, err)
	assert.Equal(t, first, id)

	id, err = f.svc.Current(ctx, loner, first)
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = f.svc.Current(ctx, admin, "")
	require.NoError(t, err)
	assert.Equal(t, first, id)

	id, err = f.svc.Current(ctx, admin, second)
	require.NoError(t, err)
	assert.Equal(t, second, id)
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.academy(t, "North", "north")
	f.academy(t, "South", "south")
	coach := f.user(t, "coach@test.local", rbac.RoleCoach, north.ID)
	admin := f.user(t, "admin@test.local", rbac.RoleAdmin)

	list, err := f.svc.ListForUser(ctx, coach)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "North", list[0].Name)

	list, err = f.svc.ListForUser(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAddAndRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.academy(t, "North", "north")
	kid := f.user(t, "kid@test.local", rbac.RoleKid)
	admin := f.user(t, "admin@test.local", rbac.RoleAdmin)

	m, err := f.svc.AddMember(ctx, north.ID, "KID@test.local", "", admin)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleKid, m.Role)

	list, err := f.svc.ListMembers(ctx, north.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kid@test.local", list[0].Name)
	assert.Equal(t, admin.UserID, list[0].CreatedBy)

	_, err = f.svc.AddMember(ctx, north.ID, "nobody@test.local", "", admin)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.AddMember(ctx, "missing", "kid@test.local", "", admin)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, f.svc.RemoveMember(ctx, north.ID, kid.UserID, "admin-1"))
	assert.False(t, f.members.IsUserInAcademy(ctx, north.ID, kid.UserID))
}

func (f fixture) router(t *testing.T, p *authz.Principal, sess *shared.Session) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	guard := authz.NewGuard(rbac.NewService(rbac.NewRepository(f.store)), nil, "en")
	respond := &authz.Responder{DefaultLocale: "en", NotFound: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}}
	h := academies.NewHandler(nil, f.svc, templates, nil, guard, respond)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithLocale(r.Context(), "en")
			ctx = authz.ContextWithPrincipal(ctx, p)
			if sess != nil {
				ctx = shared.ContextWithSession(ctx, sess)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/en/academies", h.MountRoutes)
	return r
}

func newSession(t *testing.T, store *kv.Store) *shared.Session {
	t.Helper()
	sm := shared.NewSessionManager(store, "test_session", "secret", time.Hour, false)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return sess
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestSelectHandlerStoresSelection(t *testing.T) {
	f := newFixture(t)
	north := f.academy(t, "North", "north")
	south := f.academy(t, "South", "south")
	coach := f.user(t, "coach@test.local", rbac.RoleCoach, north.ID)
	sess := newSession(t, f.store)

	rec := httptest.NewRecorder()
	f.router(t, coach, sess).ServeHTTP(rec, postForm("/en/academies/select", url.Values{"academy_id": {north.ID}, "next": {"/en/courses"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/courses", rec.Header().Get("Location"))
	assert.Equal(t, north.ID, sess.SelectedAcademy())

	rec = httptest.NewRecorder()
	f.router(t, coach, sess).ServeHTTP(rec, postForm("/en/academies/select", url.Values{"academy_id": {south.ID}}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, north.ID, sess.SelectedAcademy())
}

func TestMembersPageOfForeignAcademyIsNotFound(t *testing.T) {
	f := newFixture(t)
	north := f.academy(t, "North", "north")
	south := f.academy(t, "South", "south")
	manager := f.user(t, "manager@test.local", rbac.RoleManager, north.ID)

	rec := httptest.NewRecorder()
	f.router(t, manager, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en/academies/"+north.ID+"/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "manager@test.local")

	rec = httptest.NewRecorder()
	f.router(t, manager, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en/academies/"+south.ID+"/members", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManagerCannotGrantAdminMembership(t *testing.T) {
	f := newFixture(t)
	north := f.academy(t, "North", "north")
	manager := f.user(t, "manager@test.local", rbac.RoleManager, north.ID)
	f.user(t, "kid@test.local", rbac.RoleKid)

	rec := httptest.NewRecorder()
	f.router(t, manager, nil).ServeHTTP(rec, postForm("/en/academies/"+north.ID+"/members", url.Values{"email": {"kid@test.local"}, "role": {"admin"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))
}

func TestManagerCannotGrantAdminMembershipThroughDefaultRole(t *testing.T) {
	f := newFixture(t)
	north := f.academy(t, "North", "north")
	manager := f.user(t, "manager@test.local", rbac.RoleManager, north.ID)
	admin := f.user(t, "admin@test.local", rbac.RoleAdmin)

	rec := httptest.NewRecorder()
	f.router(t, manager, nil).ServeHTTP(rec, postForm("/en/academies/"+north.ID+"/members", url.Values{"email": {"admin@test.local"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))
	assert.False(t, f.members.IsUserInAcademy(context.Background(), north.ID, admin.UserID))

	rec = httptest.NewRecorder()
	f.router(t, manager, nil).ServeHTTP(rec, postForm("/en/academies/"+north.ID+"/members", url.Values{"email": {"admin@test.local"}, "role": {"kid"}}))
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))
	assert.False(t, f.members.IsUserInAcademy(context.Background(), north.ID, admin.UserID))
}

func TestManagerCannotPullMemberOfForeignAcademy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.academy(t, "North", "north")
	south := f.academy(t, "South", "south")
	manager := f.user(t, "manager@test.local", rbac.RoleManager, north.ID)
	southKid := f.user(t, "kid@south.test", rbac.RoleKid, south.ID)

	_, err := f.svc.AddMember(ctx, north.ID, "kid@south.test", "", manager)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.False(t, f.members.IsUserInAcademy(ctx, north.ID, southKid.UserID))

	rec := httptest.NewRecorder()
	f.router(t, manager, nil).ServeHTTP(rec, postForm("/en/academies/"+north.ID+"/members", url.Values{"email": {"kid@south.test"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/academies/"+north.ID+"/members", rec.Header().Get("Location"))
	assert.False(t, f.members.IsUserInAcademy(ctx, north.ID, southKid.UserID))
}

func TestManagerAddsUnaffiliatedOrSharedAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	north := f.academy(t, "North", "north")
	south := f.academy(t, "South", "south")
	manager := f.user(t, "manager@test.local", rbac.RoleManager, north.ID, south.ID)
	fresh := f.user(t, "fresh@test.local", rbac.RoleParent)
	coach := f.user(t, "coach@test.local", rbac.RoleCoach, south.ID)

	m, err := f.svc.AddMember(ctx, north.ID, "fresh@test.local", "", manager)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleParent, m.Role)
	assert.True(t, f.members.IsUserInAcademy(ctx, north.ID, fresh.UserID))

	_, err = f.svc.AddMember(ctx, north.ID, "coach@test.local", "", manager)
	require.NoError(t, err)
	assert.True(t, f.members.IsUserInAcademy(ctx, north.ID, coach.UserID))
}
