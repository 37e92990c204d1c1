package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/config"
	"github.com/edusso/sso-proxy/pkg/devices"
	"github.com/edusso/sso-proxy/pkg/transport"
)

const registryBody = `{"results":[
	{"id":"d1","user":{"username":"a"},"device":{"id":"h1"},"authorized":true,"last_login":"2026-02-01T08:00:00Z"},
	{"id":"d2","user":{"username":"b"},"device":{"id":"h2"},"authorized":false,"last_login":"2026-02-02T08:00:00Z"}
]}`

func newRouter(t *testing.T, backendHandler http.HandlerFunc) *chi.Mux {
	t.Helper()
	srv := httptest.NewServer(backendHandler)
	t.Cleanup(srv.Close)

	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
	handle := NewHandle(devices.NewService(client), transport.NewSessionTransport(false))

	r := chi.NewRouter()
	r.Route("/admin", handle.Routes)
	return r
}

func withSession(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: transport.AccessTokenCookie, Value: "tok"})
	return req
}

func TestList(t *testing.T) {
	router := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(registryBody))
	})

	req := withSession(httptest.NewRequest(http.MethodGet, "/admin/devices", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"d1"`)
	assert.Contains(t, rec.Body.String(), `"d2"`)
	assert.Contains(t, rec.Body.String(), `"status":"authorized"`)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestList_Filtered(t *testing.T) {
	router := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(registryBody))
	})

	req := withSession(httptest.NewRequest(http.MethodGet, "/admin/devices?filter=pending", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"d1"`)
	assert.Contains(t, rec.Body.String(), `"d2"`)
}

func TestList_UnknownFilter(t *testing.T) {
	router := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be reached")
	})

	req := withSession(httptest.NewRequest(http.MethodGet, "/admin/devices?filter=bogus", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList_NoSession(t *testing.T) {
	router := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be reached")
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/devices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorize(t *testing.T) {
	var patched string
	router := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			patched = r.URL.Path
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(registryBody))
	})

	req := withSession(httptest.NewRequest(http.MethodPatch, "/admin/devices/d2/authorize", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/authentication/user-devices/d2/authorize/", patched)
	assert.Contains(t, rec.Body.String(), `"results"`)
}

func TestRevoke_BackendForbidden(t *testing.T) {
	router := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"not an admin"}`))
	})

	req := withSession(httptest.NewRequest(http.MethodPatch, "/admin/devices/d1/revoke", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not an admin")
}
