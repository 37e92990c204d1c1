package devices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/config"
	"github.com/edusso/sso-proxy/pkg/transport"
)

const registryBody = `{"results":[
	{"id":"d1","user":{"username":"a"},"device":{"id":"h1","device_hash":"x1"},"authorized":true,"last_login":"2026-02-01T08:00:00Z"},
	{"id":"d2","user":{"username":"b"},"device":{"id":"h2","device_hash":"x2"},"authorized":false,"last_login":"2026-02-02T08:00:00Z"},
	{"id":"d3","user":{"username":"c"},"device":{"id":"h3","device_hash":"x3"},"authorized":false,"last_login":null}
]}`

var fwd = transport.Forwarded{AccessToken: "tok"}

func newService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
	return NewService(client)
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.ID
	}
	return out
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseFilter("pending")
	require.NoError(t, err)
	assert.Equal(t, FilterPending, f)

	_, err = ParseFilter("bogus")
	assert.Error(t, err)
}

func TestList_Classification(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(registryBody))
	})

	tests := []struct {
		filter Filter
		want   []string
	}{
		{FilterAll, []string{"d1", "d2", "d3"}},
		{FilterAuthorized, []string{"d1"}},
		{FilterPending, []string{"d2"}},
		{FilterBlocked, []string{"d2", "d3"}},
	}
	for _, tc := range tests {
		got, err := svc.List(context.Background(), fwd, tc.filter)
		require.NoError(t, err, "filter %s", tc.filter)
		assert.Equal(t, tc.want, ids(got), "filter %s", tc.filter)
	}
}

func TestList_RecordStatus(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(registryBody))
	})

	got, err := svc.List(context.Background(), fwd, FilterAll)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "authorized", got[0].Status)
	assert.Equal(t, "pending", got[1].Status)
	assert.Equal(t, "blocked", got[2].Status)
	assert.Equal(t, "a", got[0].User.Username)
	assert.Equal(t, "x1", got[0].Device.DeviceHash)
}

func TestList_PendingIsSubsetOfBlocked(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(registryBody))
	})

	pending, err := svc.List(context.Background(), fwd, FilterPending)
	require.NoError(t, err)
	blocked, err := svc.List(context.Background(), fwd, FilterBlocked)
	require.NoError(t, err)

	blockedIDs := ids(blocked)
	for _, p := range pending {
		assert.Contains(t, blockedIDs, p.ID)
	}
}

func TestAuthorize_PatchThenRefetch(t *testing.T) {
	var calls []string
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			w.Write([]byte(registryBody))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	got, err := svc.Authorize(context.Background(), fwd, "d2")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []string{
		"PATCH /api/authentication/user-devices/d2/authorize/",
		"GET /api/authentication/user-devices/",
	}, calls)
}

func TestRevoke_PatchThenRefetch(t *testing.T) {
	var calls []string
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			w.Write([]byte(registryBody))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	_, err := svc.Revoke(context.Background(), fwd, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"PATCH /api/authentication/user-devices/d1/revoke/",
		"GET /api/authentication/user-devices/",
	}, calls)
}

func TestAuthorize_EmptyID(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be reached")
	})

	_, err := svc.Authorize(context.Background(), fwd, "")
	assert.Error(t, err)
}

func TestAuthorize_BackendFailureSkipsRefetch(t *testing.T) {
	var getCalled bool
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			getCalled = true
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"not an admin"}`))
	})

	_, err := svc.Authorize(context.Background(), fwd, "d2")
	require.Error(t, err)
	assert.False(t, getCalled)
}
