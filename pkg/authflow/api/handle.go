// Package api exposes the /auth proxy surface: login, the OTP step, logout,
// token refresh and verification, and the session aggregates.
package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/edusso/sso-proxy/pkg/authflow"
	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/config"
	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/ratelimit"
	"github.com/edusso/sso-proxy/pkg/transport"
)

// Handle carries the dependencies of the /auth handlers. Login attempts are
// tracked per client IP so the two-step challenge and the single-in-flight
// rule hold at the HTTP surface.
type Handle struct {
	svc      *authflow.Service
	client   *backend.Client
	session  *transport.SessionTransport
	limiter  *ratelimit.LoginLimiter
	attempts *authflow.Attempts
}

// Option configures a Handle
type Option func(*Handle)

// WithLoginLimiter guards the credential endpoints with a per-IP limiter
func WithLoginLimiter(l *ratelimit.LoginLimiter) Option {
	return func(h *Handle) {
		h.limiter = l
	}
}

// NewHandle creates the /auth handler set
func NewHandle(svc *authflow.Service, client *backend.Client, session *transport.SessionTransport, opts ...Option) *Handle {
	h := &Handle{
		svc:      svc,
		client:   client,
		session:  session,
		limiter:  ratelimit.NewLoginLimiter(config.RateLimitConfig{}),
		attempts: authflow.NewAttempts(svc, authflow.DefaultAttemptTTL),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the /auth surface on the given router
func (h *Handle) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.limiter.Handler)
		r.Post("/login", h.login)
		r.Post("/verify_otp_login", h.verifyOtpLogin)
	})

	r.Get("/logout", h.logout)
	r.Post("/logout", h.logout)
	r.Get("/refresh", h.refresh)
	r.Post("/refresh", h.refresh)
	r.Get("/verify", h.verify)
	r.Post("/verify", h.verify)
	r.Get("/user", h.user)
	r.Get("/profile", h.profile)
	r.Get("/systems", h.systems)
	r.Post("/change_password", h.changePassword)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpLoginRequest struct {
	Email string `json:"email"`
	Otp   string `json:"otp"`
}

type loginResponse struct {
	Authenticated bool                    `json:"authenticated"`
	OtpRequired   bool                    `json:"otp_required,omitempty"`
	Message       string                  `json:"message,omitempty"`
	User          *backend.User           `json:"user,omitempty"`
	Profile       *map[string]interface{} `json:"profile,omitempty"`
	Warnings      []string                `json:"warnings,omitempty"`
}

func (h *Handle) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	flow := h.attempts.Get(ratelimit.ClientIP(r))
	outcome, err := flow.SubmitCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if outcome.OtpRequired {
		render.JSON(w, r, loginResponse{OtpRequired: true, Message: outcome.Message})
		return
	}

	h.attempts.Drop(ratelimit.ClientIP(r))
	h.establishSession(w, r, outcome, false)
}

func (h *Handle) verifyOtpLogin(w http.ResponseWriter, r *http.Request) {
	var req otpLoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	flow := h.attempts.Get(ratelimit.ClientIP(r))
	if req.Email != "" && req.Email != flow.Email() {
		writeError(w, r, errors.ValidationFailed("email", "does not match the pending login"))
		return
	}

	outcome, err := flow.SubmitOtp(r.Context(), req.Otp)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.attempts.Drop(ratelimit.ClientIP(r))
	h.establishSession(w, r, outcome, true)
}

// establishSession persists the cookie pair and reloads the session
// aggregates. OTP-completed logins get the longer step-up TTLs.
func (h *Handle) establishSession(w http.ResponseWriter, r *http.Request, outcome *authflow.LoginOutcome, otpLogin bool) {
	var err error
	if otpLogin {
		err = h.session.PersistOtpSession(w, outcome.AccessToken, outcome.RefreshToken)
	} else {
		err = h.session.PersistSession(w, outcome.AccessToken, outcome.RefreshToken)
	}
	if err != nil {
		writeError(w, r, errors.Wrap(err, errors.ErrCodeInternal, "failed to persist session"))
		return
	}

	h.limiter.Succeeded(r)

	resp := loginResponse{Authenticated: true, Message: outcome.Message}
	info, err := h.svc.LoadSession(r.Context(), transport.Forwarded{AccessToken: outcome.AccessToken})
	if err != nil {
		slog.Warn("session reload failed after login", "err", err)
		resp.Warnings = append(resp.Warnings, "session details could not be loaded")
	} else {
		resp.User = info.User
		if info.Profile != nil {
			resp.Profile = &info.Profile.Results
		}
		resp.Warnings = append(resp.Warnings, info.Warnings...)
	}
	render.JSON(w, r, resp)
}

// logout always succeeds from the browser's point of view. The backend's
// Set-Cookie headers drive the clear when present; otherwise every known
// session cookie is expired locally.
func (h *Handle) logout(w http.ResponseWriter, r *http.Request) {
	reply, err := h.client.Logout(r.Context(), h.session.Forward(r))
	if err != nil {
		slog.Warn("backend logout failed, clearing session locally", "err", err)
	}

	h.attempts.Drop(ratelimit.ClientIP(r))
	if !h.session.PropagateSetCookie(w, reply.SetCookies) {
		h.session.ClearSession(w)
	}

	render.JSON(w, r, map[string]string{"detail": "Logged out"})
}

func (h *Handle) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(transport.RefreshTokenCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, r, errors.Unauthenticated("no refresh token"))
		return
	}

	access, _, err := h.client.Refresh(r.Context(), cookie.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.session.RefreshAccess(w, access); err != nil {
		writeError(w, r, errors.Wrap(err, errors.ErrCodeInternal, "failed to persist refreshed token"))
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Token refreshed"})
}

func (h *Handle) verify(w http.ResponseWriter, r *http.Request) {
	fwd := h.session.Forward(r)
	if fwd.AccessToken == "" {
		writeError(w, r, errors.Unauthenticated("no access token"))
		return
	}

	if _, err := h.client.Verify(r.Context(), fwd.AccessToken); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Token is valid"})
}

func (h *Handle) user(w http.ResponseWriter, r *http.Request) {
	fwd := h.session.Forward(r)
	if fwd.AccessToken == "" {
		writeError(w, r, errors.Unauthenticated("no access token"))
		return
	}

	user, err := h.client.User(r.Context(), fwd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

func (h *Handle) profile(w http.ResponseWriter, r *http.Request) {
	fwd := h.session.Forward(r)
	if fwd.AccessToken == "" {
		writeError(w, r, errors.Unauthenticated("no access token"))
		return
	}

	profile, err := h.client.Profile(r.Context(), fwd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, profile)
}

func (h *Handle) changePassword(w http.ResponseWriter, r *http.Request) {
	fwd := h.session.Forward(r)
	if fwd.AccessToken == "" {
		writeError(w, r, errors.Unauthenticated("no access token"))
		return
	}

	var req backend.SetPasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, r, errors.ValidationFailed("password", "current and new password are required"))
		return
	}

	if err := h.client.SetPassword(r.Context(), fwd, req); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Password changed successfully"})
}

func (h *Handle) systems(w http.ResponseWriter, r *http.Request) {
	fwd := h.session.Forward(r)
	if fwd.AccessToken == "" {
		writeError(w, r, errors.Unauthenticated("no access token"))
		return
	}

	systems, err := h.client.MySystems(r.Context(), fwd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, systems)
}

// writeError renders a structured error with its mapped HTTP status
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.Error
	if !stderrors.As(err, &appErr) {
		appErr = errors.Internal("unexpected error")
	}

	render.Status(r, appErr.HTTPStatusCode())
	render.JSON(w, r, map[string]interface{}{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
