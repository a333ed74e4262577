package view

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderUsesLayoutAndChrome(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/en/courses", nil)
	ctx := shared.ContextWithLocale(req.Context(), "en")
	ctx = authz.ContextWithPrincipal(ctx, &authz.Principal{UserID: "u1", Name: "Coach Carter", Role: rbac.RoleCoach})
	ctx = ContextWithChrome(ctx, &Chrome{
		Academy:   &AcademyRef{ID: "a1", Name: "North"},
		Academies: []AcademyRef{{ID: "a1", Name: "North"}, {ID: "a2", Name: "South"}},
		Nav:       []NavItem{{Label: "Courses", Path: "/en/courses", Active: true}},
	})
	req = req.WithContext(ctx)

	data := map[string]any{
		"Courses": []struct {
			ID        string
			Title     string
			CoachID   string
			CreatedAt time.Time
		}{{ID: "c1", Title: "U12 Tuesday", CoachID: "u1"}},
		"CanCreate": false,
		"Errors":    map[string]string{},
	}
	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, http.StatusOK, "pages/courses.html", NewTemplateData(req, nil, "Courses", data)))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `href="/en/courses/c1"`)
	assert.Contains(t, body, "U12 Tuesday")
	assert.Contains(t, body, "Coach Carter")
	assert.Contains(t, body, `<option value="a2">South</option>`)
	assert.NotContains(t, body, `action="/en/courses"`)
}

func TestRenderNotFoundWithoutPrincipal(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/en/missing", nil)
	req = req.WithContext(shared.ContextWithLocale(req.Context(), "en"))
	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, http.StatusNotFound, "pages/notfound.html", NewTemplateData(req, nil, "Not found", nil)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist")
	assert.NotContains(t, rec.Body.String(), "Sign out")
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err = engine.Render(httptest.NewRecorder(), http.StatusOK, "pages/nope.html", NewTemplateData(req, nil, "", nil))
	assert.Error(t, err)
}
