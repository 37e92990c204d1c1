package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// Session cookie names visible to the browser
const (
	AccessTokenCookie  = "sso_access_token"
	RefreshTokenCookie = "sso_refresh_token"
)

// Legacy cookie names cleared defensively at logout
var legacyCookieNames = []string{"access", "refresh"}

// Forwarded carries the browser-side auth material extracted from a request.
// The access token is treated as an opaque value; nothing outside this
// package reads the cookies directly.
type Forwarded struct {
	AccessToken string // empty when the access cookie is absent
	RawCookie   string // raw Cookie header, forwarded for cookie-reading backend routes
}

// CookieSetter interface defines methods for cookie operations
type CookieSetter interface {
	// SetCookie sets a cookie with the given value and max age
	SetCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) error

	// ClearCookie expires a cookie immediately
	ClearCookie(w http.ResponseWriter, name string) error
}

// BaseCookieSetter provides a base implementation of CookieSetter
type BaseCookieSetter struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// SetCookie sets a cookie with the given value and max age
func (c *BaseCookieSetter) SetCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) error {
	cookie := &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Value:    value,
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}

	http.SetCookie(w, cookie)
	return nil
}

// ClearCookie expires a cookie immediately
func (c *BaseCookieSetter) ClearCookie(w http.ResponseWriter, name string) error {
	cookie := &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}

	http.SetCookie(w, cookie)
	return nil
}

// NewCookieSetter creates a new cookie setter
func NewCookieSetter(secure bool) CookieSetter {
	return &BaseCookieSetter{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionTransport is the sole owner of the session cookies. It translates
// inbound HttpOnly cookies to backend auth material and backend token pairs
// back to Set-Cookie headers.
type SessionTransport struct {
	setter CookieSetter

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// TTLs applied after an OTP step-up login
	OtpAccessTokenTTL  time.Duration
	OtpRefreshTokenTTL time.Duration
}

// Default cookie TTLs
const (
	DefaultAccessTokenTTL     = 5 * time.Minute
	DefaultRefreshTokenTTL    = 7 * 24 * time.Hour
	DefaultOtpAccessTokenTTL  = 30 * 24 * time.Hour
	DefaultOtpRefreshTokenTTL = 60 * 24 * time.Hour
)

// Option is a function that configures a SessionTransport
type Option func(*SessionTransport)

// WithCookieSetter overrides the cookie setter
func WithCookieSetter(setter CookieSetter) Option {
	return func(t *SessionTransport) {
		t.setter = setter
	}
}

// WithSessionTTLs sets the cookie TTLs for the standard login flow
func WithSessionTTLs(access, refresh time.Duration) Option {
	return func(t *SessionTransport) {
		t.AccessTokenTTL = access
		t.RefreshTokenTTL = refresh
	}
}

// WithOtpSessionTTLs sets the cookie TTLs applied after an OTP step-up login
func WithOtpSessionTTLs(access, refresh time.Duration) Option {
	return func(t *SessionTransport) {
		t.OtpAccessTokenTTL = access
		t.OtpRefreshTokenTTL = refresh
	}
}

// NewSessionTransport creates a session transport with secure defaults
func NewSessionTransport(secure bool, opts ...Option) *SessionTransport {
	t := &SessionTransport{
		setter:             NewCookieSetter(secure),
		AccessTokenTTL:     DefaultAccessTokenTTL,
		RefreshTokenTTL:    DefaultRefreshTokenTTL,
		OtpAccessTokenTTL:  DefaultOtpAccessTokenTTL,
		OtpRefreshTokenTTL: DefaultOtpRefreshTokenTTL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Forward extracts the auth material from an inbound browser request.
// An absent access cookie yields an empty token, never an error;
// unauthenticated calls fail at the backend.
func (t *SessionTransport) Forward(r *http.Request) Forwarded {
	fwd := Forwarded{
		RawCookie: r.Header.Get("Cookie"),
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		fwd.AccessToken = cookie.Value
	}
	return fwd
}

// PersistSession sets the access and refresh cookies with the standard TTLs
func (t *SessionTransport) PersistSession(w http.ResponseWriter, access, refresh string) error {
	if err := t.setter.SetCookie(w, AccessTokenCookie, access, t.AccessTokenTTL); err != nil {
		return err
	}
	return t.setter.SetCookie(w, RefreshTokenCookie, refresh, t.RefreshTokenTTL)
}

// PersistOtpSession sets the session cookies with the longer step-up TTLs
func (t *SessionTransport) PersistOtpSession(w http.ResponseWriter, access, refresh string) error {
	if err := t.setter.SetCookie(w, AccessTokenCookie, access, t.OtpAccessTokenTTL); err != nil {
		return err
	}
	return t.setter.SetCookie(w, RefreshTokenCookie, refresh, t.OtpRefreshTokenTTL)
}

// RefreshAccess replaces only the access cookie after a token refresh.
// The refresh cookie keeps its original expiry.
func (t *SessionTransport) RefreshAccess(w http.ResponseWriter, access string) error {
	return t.setter.SetCookie(w, AccessTokenCookie, access, t.AccessTokenTTL)
}

// PropagateSetCookie forwards backend Set-Cookie headers verbatim, so the
// source of truth drives cookie state. Returns false when there was nothing
// to forward.
func (t *SessionTransport) PropagateSetCookie(w http.ResponseWriter, setCookies []string) bool {
	if len(setCookies) == 0 {
		return false
	}
	for _, sc := range setCookies {
		w.Header().Add("Set-Cookie", sc)
	}
	return true
}

// ClearSession expires every known session cookie, including legacy names.
// Used as the logout fallback when the backend supplies no Set-Cookie of its
// own, and unconditionally when the backend is unreachable.
func (t *SessionTransport) ClearSession(w http.ResponseWriter) {
	for _, name := range append([]string{AccessTokenCookie, RefreshTokenCookie}, legacyCookieNames...) {
		if err := t.setter.ClearCookie(w, name); err != nil {
			slog.Error("Failed to clear cookie", "cookie", name, "error", err)
		}
	}
}
