package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestPersistSession_CookieAttributes(t *testing.T) {
	st := NewSessionTransport(true)
	rec := httptest.NewRecorder()
	require.NoError(t, st.PersistSession(rec, "a1", "r1"))

	cookies := cookiesByName(rec)
	access := cookies[AccessTokenCookie]
	require.NotNil(t, access)
	assert.Equal(t, "a1", access.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, int(DefaultAccessTokenTTL.Seconds()), access.MaxAge)

	refresh := cookies[RefreshTokenCookie]
	require.NotNil(t, refresh)
	assert.Equal(t, int(DefaultRefreshTokenTTL.Seconds()), refresh.MaxAge)
}

func TestPersistSession_DevModeNotSecure(t *testing.T) {
	st := NewSessionTransport(false)
	rec := httptest.NewRecorder()
	require.NoError(t, st.PersistSession(rec, "a1", "r1"))

	cookies := cookiesByName(rec)
	assert.False(t, cookies[AccessTokenCookie].Secure)
	assert.True(t, cookies[AccessTokenCookie].HttpOnly, "HttpOnly holds in every mode")
}

func TestPersistOtpSession_LongerTTLs(t *testing.T) {
	st := NewSessionTransport(true)
	rec := httptest.NewRecorder()
	require.NoError(t, st.PersistOtpSession(rec, "a1", "r1"))

	cookies := cookiesByName(rec)
	assert.Equal(t, int(DefaultOtpAccessTokenTTL.Seconds()), cookies[AccessTokenCookie].MaxAge)
	assert.Equal(t, int(DefaultOtpRefreshTokenTTL.Seconds()), cookies[RefreshTokenCookie].MaxAge)
	assert.Greater(t, cookies[AccessTokenCookie].MaxAge, int(DefaultAccessTokenTTL.Seconds()))
}

func TestRefreshAccess_TouchesOnlyAccessCookie(t *testing.T) {
	st := NewSessionTransport(true)
	rec := httptest.NewRecorder()
	require.NoError(t, st.RefreshAccess(rec, "a2"))

	cookies := cookiesByName(rec)
	require.Contains(t, cookies, AccessTokenCookie)
	assert.NotContains(t, cookies, RefreshTokenCookie)
}

func TestClearSession_IncludesLegacyNames(t *testing.T) {
	st := NewSessionTransport(true)
	rec := httptest.NewRecorder()
	st.ClearSession(rec)

	cookies := cookiesByName(rec)
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, "access", "refresh"} {
		require.Contains(t, cookies, name)
		assert.Negative(t, cookies[name].MaxAge, "cookie %s should be expired", name)
		assert.Empty(t, cookies[name].Value)
	}
}

func TestForward(t *testing.T) {
	st := NewSessionTransport(true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	fwd := st.Forward(req)
	assert.Empty(t, fwd.AccessToken)
	assert.Empty(t, fwd.RawCookie)

	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "tok"})
	req.AddCookie(&http.Cookie{Name: "other", Value: "x"})
	fwd = st.Forward(req)
	assert.Equal(t, "tok", fwd.AccessToken)
	assert.Contains(t, fwd.RawCookie, AccessTokenCookie+"=tok")
}

func TestPropagateSetCookie(t *testing.T) {
	st := NewSessionTransport(true)
	rec := httptest.NewRecorder()

	assert.False(t, st.PropagateSetCookie(rec, nil))
	assert.True(t, st.PropagateSetCookie(rec, []string{"backend_session=; Max-Age=0"}))
	assert.Equal(t, []string{"backend_session=; Max-Age=0"}, rec.Header().Values("Set-Cookie"))
}

func TestWithSessionTTLs(t *testing.T) {
	st := NewSessionTransport(true, WithSessionTTLs(time.Minute, time.Hour))
	rec := httptest.NewRecorder()
	require.NoError(t, st.PersistSession(rec, "a", "r"))

	cookies := cookiesByName(rec)
	assert.Equal(t, 60, cookies[AccessTokenCookie].MaxAge)
	assert.Equal(t, 3600, cookies[RefreshTokenCookie].MaxAge)
}
