package shared

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
)

func newManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "lab_session", "secret", time.Hour, false, nil), mr
}

func requestWith(sm *SessionManager, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: value})
	}
	return req
}

func TestSessionCommitAndReload(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, requestWith(sm, ""))
	require.NoError(t, err)
	sess.Set("user", `{"id":1}`)
	sess.AddFlash(FlashMessage{Kind: "success", Message: "hi"})

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sm.CookieValue(sess), cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.True(t, mr.Exists("session:"+sess.ID))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("session:"+sess.ID).Seconds(), 1)

	again, err := sm.Load(ctx, requestWith(sm, cookies[0].Value))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, `{"id":1}`, again.Get("user"))
	flash := again.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "hi", flash.Message)
	assert.Nil(t, again.PopFlash())
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sm, _ := newManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, requestWith(sm, ""))
	require.NoError(t, err)
	sess.Set("user", "x")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))

	for _, value := range []string{sess.ID, sess.ID + ".forged", "no-dot", ".sig"} {
		got, err := sm.Load(ctx, requestWith(sm, value))
		require.NoError(t, err)
		assert.NotEqual(t, sess.ID, got.ID, value)
		assert.Empty(t, got.Get("user"), value)
	}
}

func TestSessionCorruptPayloadStartsFresh(t *testing.T) {
	sm, mr := newManager(t)
	sess := &Session{ID: "abc"}
	require.NoError(t, mr.Set("session:abc", "{not json"))

	got, err := sm.Load(context.Background(), requestWith(sm, sm.CookieValue(sess)))
	require.NoError(t, err)
	assert.NotEqual(t, "abc", got.ID)
	assert.Empty(t, got.Get("user"))
}

func TestSessionRedisFailureIsAnError(t *testing.T) {
	sm, mr := newManager(t)
	mr.Close()

	_, err := sm.Load(context.Background(), requestWith(sm, sm.CookieValue(&Session{ID: "abc"})))
	assert.Error(t, err)
}

func TestSessionDestroy(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, requestWith(sm, ""))
	require.NoError(t, err)
	sess.Set("token", "t")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	before := sess.Revision()

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))

	assert.Greater(t, sess.Revision(), before)
	assert.Empty(t, sess.Get("token"))
	assert.False(t, mr.Exists("session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestSessionRevisionTracksWrites(t *testing.T) {
	sess := &Session{ID: "r"}
	assert.Zero(t, sess.Revision())
	sess.Set("a", "1")
	sess.Delete("missing")
	assert.Equal(t, uint64(1), sess.Revision())
	sess.Delete("a")
	assert.Equal(t, uint64(2), sess.Revision())
	sess.AddFlash(FlashMessage{Message: "x"})
	assert.Equal(t, uint64(2), sess.Revision())
}

func TestSessionRenewMovesEntryToFreshID(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, requestWith(sm, ""))
	require.NoError(t, err)
	sess.Set(CSRFSessionKey, "nonce")
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	oldCookie := rec.Result().Cookies()[0].Value
	oldID := sess.ID

	loaded, err := sm.Load(ctx, requestWith(sm, oldCookie))
	require.NoError(t, err)
	newID := sm.Renew(loaded)
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, newID, loaded.ID)
	assert.Equal(t, "nonce", loaded.Get(CSRFSessionKey))

	rec = httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, loaded))
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+newID))
	assert.Equal(t, sm.CookieValue(loaded), rec.Result().Cookies()[0].Value)

	stale, err := sm.Load(ctx, requestWith(sm, oldCookie))
	require.NoError(t, err)
	assert.NotEqual(t, oldID, stale.ID)
	assert.Empty(t, stale.Get(CSRFSessionKey))
}
