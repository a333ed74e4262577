package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/rbac"
	"github.com/academyhub/academyhub/internal/shared"
)

type denialCounter map[string]int

func (d denialCounter) RecordDenial(kind string) { d[kind]++ }

func TestRespondUnauthenticatedRedirectsToLogin(t *testing.T) {
	counter := denialCounter{}
	resp := &Responder{Metrics: counter}
	req := httptest.NewRequest(http.MethodGet, "/en/users/42?tab=x", nil)
	rec := httptest.NewRecorder()

	resp.Respond(rec, req, &Failure{Kind: KindUnauthenticated, Locale: "en"})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/login?next=%2Fen%2Fusers%2F42%3Ftab%3Dx", rec.Header().Get("Location"))
	assert.Equal(t, 1, counter["unauthenticated"])
}

func TestRespondForbiddenRedirects(t *testing.T) {
	resp := &Responder{}
	req := httptest.NewRequest(http.MethodGet, "/id/roles", nil)
	rec := httptest.NewRecorder()

	resp.Respond(rec, req, &Failure{Kind: KindForbidden, Locale: "id"})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/id/forbidden", rec.Header().Get("Location"))
}

func TestRespondNotFoundUsesHandler(t *testing.T) {
	called := false
	resp := &Responder{NotFound: func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNotFound)
	}}
	rec := httptest.NewRecorder()
	resp.Respond(rec, httptest.NewRequest(http.MethodGet, "/en/users/x", nil), fmt.Errorf("load: %w", shared.ErrNotFound))

	assert.True(t, called)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRespondJSON(t *testing.T) {
	resp := &Responder{}
	req := httptest.NewRequest(http.MethodGet, "/en/users", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	resp.Respond(rec, req, &Failure{Kind: KindForbidden})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":403`)
	assert.Contains(t, rec.Body.String(), `"instance":"/en/users"`)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRespondUnexpectedError(t *testing.T) {
	resp := &Responder{}
	rec := httptest.NewRecorder()
	resp.Respond(rec, httptest.NewRequest(http.MethodGet, "/en", nil), errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/en/users", SafeNext("/en/users", "/en"))
	assert.Equal(t, "/en", SafeNext("//evil.example", "/en"))
	assert.Equal(t, "/en", SafeNext("https://evil.example/", "/en"))
	assert.Equal(t, "/en", SafeNext("/\\evil.example", "/en"))
	assert.Equal(t, "/en", SafeNext("", "/en"))
}

type stubLoader struct {
	principals map[string]*Principal
}

func (s stubLoader) LoadPrincipal(_ context.Context, userID string) (*Principal, error) {
	p, ok := s.principals[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

type stubSessions map[string]bool

func (s stubSessions) SessionActive(_ context.Context, id string) (bool, error) {
	return s[id], nil
}

func TestAuthenticateMiddleware(t *testing.T) {
	tokens := newTokens(t)
	loader := stubLoader{principals: map[string]*Principal{
		"u1": {UserID: "u1", Role: rbac.RoleCoach, Active: true},
		"u2": {UserID: "u2", Role: rbac.RoleCoach, Active: false},
	}}
	raw1, c1, err := tokens.Issue("u1")
	require.NoError(t, err)
	raw2, c2, err := tokens.Issue("u2")
	require.NoError(t, err)
	revoked, _, err := tokens.Issue("u1")
	require.NoError(t, err)
	sessions := stubSessions{c1.SessionID: true, c2.SessionID: true}

	var seen *Principal
	h := Authenticate(tokens, loader, sessions, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))

	cases := []struct {
		name  string
		token string
		want  string
	}{
		{"valid", raw1, "u1"},
		{"inactive user", raw2, ""},
		{"revoked session", revoked, ""},
		{"garbage", "not-a-token", ""},
		{"none", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.token != "" {
				req.AddCookie(&http.Cookie{Name: "academy_token", Value: tc.token})
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if tc.want == "" {
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, tc.want, seen.UserID)
		})
	}
}

func TestRequirePermissionMiddleware(t *testing.T) {
	g := NewGuard(&stubPolicy{allowed: map[string]bool{"courses:read": true}}, nil, "en")
	resp := &Responder{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	read := g.RequirePermissionMiddleware(resp, "courses", rbac.ActionRead)(ok)
	del := g.RequirePermissionMiddleware(resp, "courses", rbac.ActionDelete)(ok)
	ctx := withPrincipal(&Principal{UserID: "c", Role: rbac.RoleCoach, Active: true})

	rec := httptest.NewRecorder()
	read.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en/courses", nil).WithContext(ctx))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	del.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/en/courses/1/delete", nil).WithContext(ctx))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/forbidden", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	read.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en/courses", nil))
	assert.Equal(t, "/en/login?next=%2Fen%2Fcourses", rec.Header().Get("Location"))
}
