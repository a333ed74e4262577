package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/platform/kv"
	"github.com/academyhub/academyhub/internal/shared"
)

func newStore(t *testing.T) *kv.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.New(client, "test")
}

func TestSessionPersistsAcademyAndFlash(t *testing.T) {
	sm := shared.NewSessionManager(newStore(t), "sid", "secret", time.Hour, false)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetSelectedAcademy("A1")
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "saved"})

	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, res, req, sess))
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "A1", loaded.SelectedAcademy())

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "saved", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestSessionUnknownCookieGetsFreshID(t *testing.T) {
	sm := shared.NewSessionManager(newStore(t), "sid", "secret", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "attacker-chosen"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	store := newStore(t)
	sm := shared.NewSessionManager(store, "sid", "secret", time.Hour, false)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	sm.Destroy(sess)
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, res, req, sess))
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	ok, err := store.Exists(ctx, kv.Key("session", sess.ID))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdempotencyRejectsRepeatedKey(t *testing.T) {
	store := shared.NewIdempotencyStore(newStore(t))
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "k1", "broadcast"))
	assert.ErrorIs(t, store.CheckAndInsert(ctx, "k1", "broadcast"), shared.ErrDuplicate)
	assert.NoError(t, store.CheckAndInsert(ctx, "k1", "other"))
}

func TestIdempotencyReleaseAllowsRetry(t *testing.T) {
	store := shared.NewIdempotencyStore(newStore(t))
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "k1", "messages"))
	require.NoError(t, store.Release(ctx, "k1", "messages"))
	assert.NoError(t, store.CheckAndInsert(ctx, "k1", "messages"))
}

func TestAuditRecentNewestFirst(t *testing.T) {
	logger := shared.NewAuditLogger(newStore(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, logger.Record(ctx, shared.AuditLog{ActorID: "a", Action: "update", Entity: "matrix", EntityID: "coach", At: base}))
	require.NoError(t, logger.Record(ctx, shared.AuditLog{ActorID: "a", Action: "create", Entity: "membership", EntityID: "A1/u1", At: base.Add(time.Minute)}))
	assert.Error(t, logger.Record(ctx, shared.AuditLog{Action: "create"}))

	entries, err := logger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "membership", entries[0].Entity)
	assert.Equal(t, "matrix", entries[1].Entity)
}

func TestSessionRenewMovesToFreshID(t *testing.T) {
	store := newStore(t)
	sm := shared.NewSessionManager(store, "sid", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	sess.SetSelectedAcademy("A1")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	oldID := sess.ID

	sess.Renew()
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	assert.NotEqual(t, oldID, sess.ID)
	assert.Equal(t, "A1", sess.SelectedAcademy())
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token), shared.ErrCSRFTokenMissing)

	exists, err := store.Exists(ctx, kv.Key("session", oldID))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	sm := shared.NewSessionManager(newStore(t), "sid", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	ctx := context.Background()
	a, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	b, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(ctx, a)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, token, again)
	require.NoError(t, csrf.VerifyToken(ctx, a, token))

	b.Set(shared.CSRFSessionKey, token)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, b, token), shared.ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, a, ""), shared.ErrCSRFTokenMissing)
}
