package idstub

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

// The API tests drive the stub through the same typed client the proxy
// uses, so both sides of the contract are checked at once.
func newStubClient(t *testing.T) (*backend.Client, *Service) {
	t.Helper()
	accounts := NewAccountStore()
	_, err := accounts.Seed("user@example.com", "jdoe", "secret", false)
	require.NoError(t, err)
	_, err = accounts.Seed("admin@example.com", "root", "secret", true)
	require.NoError(t, err)

	svc := NewService(accounts, NewInMemDeviceRepository(), NewTokenIssuer("test-secret", 5*time.Minute, time.Hour))
	srv := httptest.NewServer(NewHandle(svc, "stub-key").Routes())
	t.Cleanup(srv.Close)

	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, APIKey: "stub-key", Timeout: 5 * time.Second})
	return client, svc
}

func TestAPI_RejectsMissingAPIKey(t *testing.T) {
	_, svc := newStubClient(t)
	srv := httptest.NewServer(NewHandle(svc, "stub-key").Routes())
	t.Cleanup(srv.Close)

	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, APIKey: "wrong", Timeout: 5 * time.Second})
	_, _, err := client.SSOLogin(context.Background(), backend.LoginRequest{Email: "user@example.com", Password: "secret"})
	require.Error(t, err)
}

func TestAPI_LoginRoundTrip(t *testing.T) {
	client, _ := newStubClient(t)
	ctx := context.Background()

	resp, _, err := client.SSOLogin(ctx, backend.LoginRequest{Email: "user@example.com", Password: "secret"})
	require.NoError(t, err)
	require.NotNil(t, resp.Results.Access)

	fwd := transport.Forwarded{AccessToken: *resp.Results.Access}
	user, err := client.User(ctx, fwd)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
	assert.False(t, user.TwoFactorEnabled)

	_, err = client.Verify(ctx, *resp.Results.Access)
	require.NoError(t, err)

	access, _, err := client.Refresh(ctx, *resp.Results.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
}

func TestAPI_SetPasswordRoundTrip(t *testing.T) {
	client, _ := newStubClient(t)
	ctx := context.Background()

	resp, _, err := client.SSOLogin(ctx, backend.LoginRequest{Email: "user@example.com", Password: "secret"})
	require.NoError(t, err)
	fwd := transport.Forwarded{AccessToken: *resp.Results.Access}

	err = client.SetPassword(ctx, fwd, backend.SetPasswordRequest{CurrentPassword: "nope", NewPassword: "Fresh123!"})
	require.Error(t, err)

	err = client.SetPassword(ctx, fwd, backend.SetPasswordRequest{CurrentPassword: "secret", NewPassword: "Fresh123!"})
	require.NoError(t, err)

	_, _, err = client.SSOLogin(ctx, backend.LoginRequest{Email: "user@example.com", Password: "secret"})
	require.Error(t, err)
	_, _, err = client.SSOLogin(ctx, backend.LoginRequest{Email: "user@example.com", Password: "Fresh123!"})
	assert.NoError(t, err)
}

func TestAPI_BadPasswordIs401(t *testing.T) {
	client, _ := newStubClient(t)

	_, reply, err := client.SSOLogin(context.Background(), backend.LoginRequest{Email: "user@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, reply.Status)
}

func TestAPI_DeviceLoginPendingThenAuthorized(t *testing.T) {
	client, _ := newStubClient(t)
	ctx := context.Background()

	req := backend.LoginRequest{
		Email:      "user@example.com",
		Password:   "secret",
		DeviceHash: "hash-1",
		Components: map[string]interface{}{"nombre_maquina": "WS-01"},
	}

	_, reply, err := client.SecureDeviceLogin(ctx, req)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, reply.Status)

	// Admin sees the pending record and authorizes it.
	adminResp, _, err := client.SSOLogin(ctx, backend.LoginRequest{Email: "admin@example.com", Password: "secret"})
	require.NoError(t, err)
	adminFwd := transport.Forwarded{AccessToken: *adminResp.Results.Access}

	records, err := client.ListUserDevices(ctx, adminFwd)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Authorized)
	require.NotNil(t, records[0].LastLogin)
	assert.Equal(t, "jdoe", records[0].User.Username)

	require.NoError(t, client.AuthorizeDevice(ctx, adminFwd, records[0].ID))

	resp, _, err := client.SecureDeviceLogin(ctx, req)
	require.NoError(t, err)
	assert.NotNil(t, resp.Results.Access)

	require.NoError(t, client.RevokeDevice(ctx, adminFwd, records[0].ID))
	_, reply, err = client.SecureDeviceLogin(ctx, req)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, reply.Status)
}

func TestAPI_DeviceAdminRequiresAdmin(t *testing.T) {
	client, _ := newStubClient(t)
	ctx := context.Background()

	resp, _, err := client.SSOLogin(ctx, backend.LoginRequest{Email: "user@example.com", Password: "secret"})
	require.NoError(t, err)
	fwd := transport.Forwarded{AccessToken: *resp.Results.Access}

	_, err = client.ListUserDevices(ctx, fwd)
	require.Error(t, err)
}

func TestAPI_LogoutSendsSetCookie(t *testing.T) {
	client, _ := newStubClient(t)
	ctx := context.Background()

	resp, _, err := client.SSOLogin(ctx, backend.LoginRequest{Email: "user@example.com", Password: "secret"})
	require.NoError(t, err)

	reply, err := client.Logout(ctx, transport.Forwarded{AccessToken: *resp.Results.Access})
	require.NoError(t, err)
	require.NotEmpty(t, reply.SetCookies)
	assert.Contains(t, reply.SetCookies[0], "sessionid=")
}

func TestAPI_ProtectedRoutesNeedToken(t *testing.T) {
	client, _ := newStubClient(t)

	_, err := client.User(context.Background(), transport.Forwarded{})
	require.Error(t, err)
}
