package authz

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(TokenConfig{Secret: "0123456789abcdef0123", TTL: time.Hour})
	require.NoError(t, err)
	return m
}

func TestTokenRoundTrip(t *testing.T) {
	m := newTokens(t)
	raw, claims, err := m.Issue("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, claims.SessionID)

	got, err := m.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, claims.SessionID, got.SessionID)
}

func TestTokenRejectsShortSecret(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{Secret: "short"})
	assert.Error(t, err)
}

func TestTokenRejectsForeignSignature(t *testing.T) {
	m := newTokens(t)
	other, err := NewTokenManager(TokenConfig{Secret: "another-secret-value-000"})
	require.NoError(t, err)
	raw, _, err := other.Issue("user-1")
	require.NoError(t, err)

	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpires(t *testing.T) {
	m := newTokens(t)
	raw, _, err := m.Issue("user-1")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCookie(t *testing.T) {
	m := newTokens(t)
	rec := httptest.NewRecorder()
	m.SetCookie(rec, "abc", time.Now().Add(time.Hour))

	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	assert.Equal(t, "abc", m.FromRequest(req))
	assert.Empty(t, m.FromRequest(httptest.NewRequest("GET", "/", nil)))
}
