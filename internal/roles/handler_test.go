package roles_test

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

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/roles"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/testing/kvtest"
	"github.com/academyhub/academyhub/internal/view"
)

type fixture struct {
	policy  *rbac.Service
	audit   *shared.AuditLogger
	service *roles.Service
	router  func(p *authz.Principal) http.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := kvtest.NewStore(t)
	policy := rbac.NewService(rbac.NewRepository(store))
	require.NoError(t, policy.SeedDefaults(context.Background()))
	audit := shared.NewAuditLogger(store)
	svc := roles.NewService(policy, audit, nil)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	guard := authz.NewGuard(policy, nil, "en")
	respond := &authz.Responder{DefaultLocale: "en", NotFound: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}}
	handler := roles.NewHandler(nil, svc, templates, nil, guard, respond)
	perms := roles.NewPermissionsHandler(nil, svc, templates, nil, guard, respond)

	return fixture{
		policy:  policy,
		audit:   audit,
		service: svc,
		router: func(p *authz.Principal) http.Handler {
			r := chi.NewRouter()
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					ctx := shared.ContextWithLocale(r.Context(), "en")
					ctx = authz.ContextWithPrincipal(ctx, p)
					next.ServeHTTP(w, r.WithContext(ctx))
				})
			})
			r.Route("/en/roles", handler.MountRoutes)
			r.Route("/en/permissions", perms.MountRoutes)
			return r
		},
	}
}

var (
	admin   = &authz.Principal{UserID: "admin-1", Role: rbac.RoleAdmin, Active: true}
	manager = &authz.Principal{UserID: "manager-1", Role: rbac.RoleManager, Active: true}
)

func do(h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestParseMatrixForm(t *testing.T) {
	matrix, err := roles.ParseMatrixForm([]string{"courses:read", "courses:write", "messages:create"})
	require.NoError(t, err)
	assert.Equal(t, []rbac.Action{rbac.ActionRead, rbac.ActionWrite}, matrix["courses"])
	assert.Equal(t, []rbac.Action{rbac.ActionCreate}, matrix["messages"])

	_, err = roles.ParseMatrixForm([]string{"courses"})
	assert.Error(t, err)
}

func TestMatrixPageShowsStoredCells(t *testing.T) {
	f := newFixture(t)
	rec := do(f.router(manager), http.MethodGet, "/en/roles/matrix?role=coach", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `value="courses:write" checked`)
	assert.NotContains(t, body, `value="courses:delete" checked`)
	assert.Contains(t, body, "disabled")
}

func TestMatrixUnknownRoleIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := do(f.router(manager), http.MethodGet, "/en/roles/matrix?role=owner", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManagerCannotChangeMatrix(t *testing.T) {
	f := newFixture(t)
	rec := do(f.router(manager), http.MethodPost, "/en/roles/matrix", url.Values{"role": {"coach"}, "cell": {"roles:manage"}})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))
	ok, err := f.policy.Allows(context.Background(), rbac.Subject{Role: rbac.RoleCoach}, rbac.ResRoles, rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdminMatrixUpdateTakesEffectAndIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coach := rbac.Subject{UserID: "coach-1", Role: rbac.RoleCoach}

	ok, err := f.policy.Allows(ctx, coach, rbac.ResCourses, rbac.ActionWrite)
	require.NoError(t, err)
	require.True(t, ok)

	rec := do(f.router(admin), http.MethodPost, "/en/roles/matrix", url.Values{"role": {"coach"}, "cell": {"courses:read", "dashboard:read"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/roles/matrix?role=coach", rec.Header().Get("Location"))

	ok, err = f.policy.Allows(ctx, coach, rbac.ResCourses, rbac.ActionWrite)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.policy.Allows(ctx, coach, rbac.ResCourses, rbac.ActionRead)
	require.NoError(t, err)
	assert.True(t, ok)

	logs, err := f.audit.Recent(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "matrix.update", logs[0].Action)
	assert.Equal(t, "admin-1", logs[0].ActorID)
	assert.Equal(t, "coach", logs[0].EntityID)
}

func TestMatrixUpdateRejectsUnknownResource(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.UpdateMatrix(context.Background(), rbac.RoleCoach, map[string][]rbac.Action{"ledger": {rbac.ActionRead}}, "admin-1")
	assert.ErrorIs(t, err, rbac.ErrUnknownResource)
}

func TestAuditPageIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	rec := do(f.router(manager), http.MethodGet, "/en/roles/audit", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))

	_, err := f.service.CreateRole(context.Background(), "Scouts", "", nil, "admin-1")
	require.NoError(t, err)
	rec = do(f.router(admin), http.MethodGet, "/en/roles/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "role.create")
}

func TestRoleLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	perm, err := f.service.EnsurePermission(ctx, "courses", rbac.ActionRead, "Read courses", "admin-1")
	require.NoError(t, err)

	role, err := f.service.CreateRole(ctx, " Assistants ", "helpers", []string{perm.ID}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "Assistants", role.Name)

	_, err = f.service.UpdateRole(ctx, role.ID, " ", "", nil, "admin-1")
	assert.Error(t, err)

	rec := do(f.router(manager), http.MethodGet, "/en/roles/"+role.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Assistants")

	rec = do(f.router(manager), http.MethodPost, "/en/roles/"+role.ID+"/delete", url.Values{})
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))

	rec = do(f.router(admin), http.MethodPost, "/en/roles/"+role.ID+"/delete", url.Values{})
	assert.Equal(t, "/en/roles", rec.Header().Get("Location"))
	rec = do(f.router(admin), http.MethodGet, "/en/roles/"+role.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterResourceIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"key": {"tournaments"}, "type": {"entity"}, "actions": {"read", "create"}}

	rec := do(f.router(manager), http.MethodPost, "/en/permissions/resources", form)
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))

	rec = do(f.router(admin), http.MethodPost, "/en/permissions/resources", form)
	assert.Equal(t, "/en/permissions/resources", rec.Header().Get("Location"))
	resources, err := f.service.ListResources(context.Background())
	require.NoError(t, err)
	var keys []string
	for _, r := range resources {
		keys = append(keys, r.Key)
	}
	assert.Contains(t, keys, "tournaments")
}
