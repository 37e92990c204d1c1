// Package backend implements a typed HTTP client over the external identity
// backend. The backend's contract is fixed; this package owns all URL paths,
// header conventions and envelope shapes so the rest of the proxy only sees
// Go types and structured errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/edusso/sso-proxy/pkg/config"
	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/transport"
)

const (
	apiKeyHeader = "API-Key"

	pathSSOLogin          = "/api/authentication/sso-login/"
	pathSecureDeviceLogin = "/api/authentication/secure-device-login/"
	pathVerifyOTPLogin    = "/api/authentication/verify_otp_login/"
	pathRefresh           = "/auth/jwt/refresh/"
	pathVerify            = "/auth/jwt/verify/"
	pathLogout            = "/api/sso/logout/"
	pathUser              = "/auth/users/me/"
	pathSetPassword       = "/auth/users/set_password/"
	pathProfile           = "/api/profile/my_profile/"
	pathSystems           = "/api/authentication/mis-sistemas/"
	pathGenerateQRCode    = "/api/authentication/generate_qr_code/"
	pathVerifyOTP         = "/api/authentication/verify_otp/"
	pathConfirm2FA        = "/api/authentication/confirm_2fa/"
	pathUserDevices       = "/api/authentication/user-devices/"
)

// Client talks to the identity backend. All methods attach the shared API key;
// the backend token, when present in the forwarded session, goes out as
// "Authorization: JWT <token>".
type Client struct {
	baseURL   string
	apiKey    string
	mediaHost string
	http      *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient builds a Client from backend configuration
func NewClient(cfg config.BackendConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		mediaHost: strings.TrimRight(cfg.MediaHost, "/"),
		http:      &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reply carries whatever the backend wants the browser to know beyond the
// decoded body: original status and any Set-Cookie headers to relay.
type Reply struct {
	Status     int
	SetCookies []string
}

func (c *Client) do(ctx context.Context, method, path string, fwd transport.Forwarded, body interface{}, out interface{}) (Reply, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Reply{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Reply{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to build backend request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if fwd.AccessToken != "" {
		req.Header.Set("Authorization", "JWT "+fwd.AccessToken)
	}
	if fwd.RawCookie != "" {
		req.Header.Set("Cookie", fwd.RawCookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("backend request failed", "method", method, "path", path, "err", err)
		return Reply{}, errors.BackendUnavailable(err)
	}
	defer resp.Body.Close()

	reply := Reply{
		Status:     resp.StatusCode,
		SetCookies: resp.Header.Values("Set-Cookie"),
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply, errors.BackendUnavailable(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return reply, c.statusError(resp.StatusCode, data, path)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			slog.Error("backend returned unexpected body", "path", path, "status", resp.StatusCode, "err", err)
			return reply, errors.UnexpectedBackendShape(err)
		}
	}
	return reply, nil
}

// statusError maps a backend error response to a structured error that keeps
// the original status code for relay.
func (c *Client) statusError(status int, body []byte, path string) error {
	message := http.StatusText(status)
	var detail ErrorDetail
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		message = detail.Detail
	} else {
		// Field validation errors arrive as {"field": ["message", ...]}.
		var fields map[string][]string
		if json.Unmarshal(body, &fields) == nil {
			for _, msgs := range fields {
				if len(msgs) > 0 {
					message = msgs[0]
					break
				}
			}
		}
	}

	var code errors.ErrorCode
	switch status {
	case http.StatusUnauthorized:
		code = errors.ErrCodeUnauthenticated
	case http.StatusForbidden:
		code = errors.ErrCodeForbidden
	case http.StatusNotFound:
		code = errors.ErrCodeNotFound
	case http.StatusBadRequest:
		code = errors.ErrCodeInvalidInput
	default:
		code = errors.ErrCodeBackendUnavailable
	}
	slog.Debug("backend error response", "path", path, "status", status, "message", message)
	return errors.New(code, message).WithStatus(status)
}

// SSOLogin performs the first login step against the standard endpoint,
// used when no device fingerprint is available.
func (c *Client) SSOLogin(ctx context.Context, req LoginRequest) (*LoginResponse, Reply, error) {
	var out LoginResponse
	reply, err := c.do(ctx, http.MethodPost, pathSSOLogin, transport.Forwarded{}, req, &out)
	if err != nil {
		return nil, reply, err
	}
	return &out, reply, nil
}

// SecureDeviceLogin performs the first login step with a device fingerprint
func (c *Client) SecureDeviceLogin(ctx context.Context, req LoginRequest) (*LoginResponse, Reply, error) {
	var out LoginResponse
	reply, err := c.do(ctx, http.MethodPost, pathSecureDeviceLogin, transport.Forwarded{}, req, &out)
	if err != nil {
		return nil, reply, err
	}
	return &out, reply, nil
}

// VerifyOTPLogin completes the challenged login with a one-time code
func (c *Client) VerifyOTPLogin(ctx context.Context, req OtpLoginRequest) (*LoginResponse, Reply, error) {
	var out LoginResponse
	reply, err := c.do(ctx, http.MethodPost, pathVerifyOTPLogin, transport.Forwarded{}, req, &out)
	if err != nil {
		return nil, reply, err
	}
	return &out, reply, nil
}

// Refresh exchanges a refresh token for a new access token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (access string, reply Reply, err error) {
	var out struct {
		Access string `json:"access"`
	}
	reply, err = c.do(ctx, http.MethodPost, pathRefresh, transport.Forwarded{}, map[string]string{"refresh": refreshToken}, &out)
	if err != nil {
		return "", reply, err
	}
	if out.Access == "" {
		return "", reply, errors.UnexpectedBackendShape(fmt.Errorf("refresh response missing access token"))
	}
	return out.Access, reply, nil
}

// Verify checks that an access token is still valid
func (c *Client) Verify(ctx context.Context, accessToken string) (Reply, error) {
	return c.do(ctx, http.MethodPost, pathVerify, transport.Forwarded{}, map[string]string{"token": accessToken}, nil)
}

// Logout notifies the backend that the session ends. Callers treat failures
// as advisory; local cookie clearing always proceeds.
func (c *Client) Logout(ctx context.Context, fwd transport.Forwarded) (Reply, error) {
	return c.do(ctx, http.MethodPost, pathLogout, fwd, nil, nil)
}

// User fetches the authenticated account
func (c *Client) User(ctx context.Context, fwd transport.Forwarded) (*User, error) {
	var out User
	if _, err := c.do(ctx, http.MethodGet, pathUser, fwd, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPassword changes the authenticated account's password. The backend
// answers 204 No Content on success.
func (c *Client) SetPassword(ctx context.Context, fwd transport.Forwarded, req SetPasswordRequest) error {
	_, err := c.do(ctx, http.MethodPost, pathSetPassword, fwd, req, nil)
	return err
}

// Profile fetches the presentation profile and normalizes any asset URLs
// against the configured media host.
func (c *Client) Profile(ctx context.Context, fwd transport.Forwarded) (*Profile, error) {
	var out Profile
	if _, err := c.do(ctx, http.MethodGet, pathProfile, fwd, nil, &out); err != nil {
		return nil, err
	}
	c.normalizeAssetURLs(out.Results)
	return &out, nil
}

// MySystems fetches the systems the user can reach
func (c *Client) MySystems(ctx context.Context, fwd transport.Forwarded) (*SystemsResponse, error) {
	var out SystemsResponse
	if _, err := c.do(ctx, http.MethodGet, pathSystems, fwd, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateQRCode starts 2FA provisioning and returns the otpauth URI
func (c *Client) GenerateQRCode(ctx context.Context, fwd transport.Forwarded) (*QRCodeResponse, error) {
	var out QRCodeResponse
	if _, err := c.do(ctx, http.MethodGet, pathGenerateQRCode, fwd, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP checks an enrollment code against the provisioned secret
func (c *Client) VerifyOTP(ctx context.Context, fwd transport.Forwarded, otp string) (Reply, error) {
	return c.do(ctx, http.MethodPost, pathVerifyOTP, fwd, VerifyOtpRequest{Otp: otp}, nil)
}

// Confirm2FA commits the 2FA state after a successful OTP check
func (c *Client) Confirm2FA(ctx context.Context, fwd transport.Forwarded, enabled bool) (Reply, error) {
	return c.do(ctx, http.MethodPost, pathConfirm2FA, fwd, ConfirmTwoFaRequest{Enabled: enabled}, nil)
}

// ListUserDevices fetches every server-observed device record
func (c *Client) ListUserDevices(ctx context.Context, fwd transport.Forwarded) ([]UserDevice, error) {
	var out UserDevicesResponse
	if _, err := c.do(ctx, http.MethodGet, pathUserDevices, fwd, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// AuthorizeDevice flips a device record to authorized
func (c *Client) AuthorizeDevice(ctx context.Context, fwd transport.Forwarded, deviceID string) error {
	_, err := c.do(ctx, http.MethodPatch, pathUserDevices+deviceID+"/authorize/", fwd, nil, nil)
	return err
}

// RevokeDevice withdraws a device record's authorization
func (c *Client) RevokeDevice(ctx context.Context, fwd transport.Forwarded, deviceID string) error {
	_, err := c.do(ctx, http.MethodPatch, pathUserDevices+deviceID+"/revoke/", fwd, nil, nil)
	return err
}

// normalizeAssetURLs rewrites relative media paths inside the profile payload
// into absolute URLs on the media host. Only string values that look like
// media paths are touched.
func (c *Client) normalizeAssetURLs(m map[string]interface{}) {
	if c.mediaHost == "" || m == nil {
		return
	}
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if strings.HasPrefix(val, "/media/") {
				m[k] = c.mediaHost + val
			}
		case map[string]interface{}:
			c.normalizeAssetURLs(val)
		}
	}
}
