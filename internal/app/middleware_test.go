package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/testing/kvtest"
)

func TestVerifyCSRFRejectsMissingToken(t *testing.T) {
	sessions := shared.NewSessionManager(kvtest.NewStore(t), "sid", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	var token string
	h := loadSession(sessions, logger)(verifyCSRF(csrf, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			token, _ = csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		}
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotEmpty(t, token)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	post := func(form url.Values) int {
		req := httptest.NewRequest(http.MethodPost, "/en/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusForbidden, post(url.Values{}))
	assert.Equal(t, http.StatusForbidden, post(url.Values{shared.CSRFFormField: {"forged"}}))
	assert.Equal(t, http.StatusNoContent, post(url.Values{shared.CSRFFormField: {token}}))
}

func TestRequestLoggerWarnsOnServerErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	h := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Empty(t, buf.String())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Contains(t, buf.String(), "status=500")
	assert.Contains(t, buf.String(), "path=/boom")
}
