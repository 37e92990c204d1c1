// Package api exposes the 2FA lifecycle endpoints under /auth
package api

import (
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/transport"
	"github.com/edusso/sso-proxy/pkg/twofa"
)

// Handle carries the dependencies of the 2FA handlers. Each session's
// enrollment goes through its tracked lifecycle so a confirm can never run
// before its provisioning step.
type Handle struct {
	session     *transport.SessionTransport
	enrollments *twofa.Enrollments
}

// NewHandle creates the 2FA handler set
func NewHandle(svc *twofa.Service, session *transport.SessionTransport) *Handle {
	return &Handle{
		session:     session,
		enrollments: twofa.NewEnrollments(svc, twofa.DefaultEnrollmentTTL),
	}
}

// Routes mounts the 2FA surface on the given router
func (h *Handle) Routes(r chi.Router) {
	r.Get("/generate_qr_code", h.generateQRCode)
	r.Post("/verify_otp", h.verifyOtp)
	r.Post("/confirm_2fa", h.confirm2FA)
}

func (h *Handle) authed(w http.ResponseWriter, r *http.Request) (transport.Forwarded, bool) {
	fwd := h.session.Forward(r)
	if fwd.AccessToken == "" {
		writeError(w, r, errors.Unauthenticated("no access token"))
		return fwd, false
	}
	return fwd, true
}

func (h *Handle) generateQRCode(w http.ResponseWriter, r *http.Request) {
	fwd, ok := h.authed(w, r)
	if !ok {
		return
	}

	lc, err := h.enrollments.Get(r.Context(), fwd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	uri, err := lc.Begin(r.Context(), fwd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"results": uri})
}

type otpRequest struct {
	Otp string `json:"otp"`
}

func (h *Handle) verifyOtp(w http.ResponseWriter, r *http.Request) {
	fwd, ok := h.authed(w, r)
	if !ok {
		return
	}

	var req otpRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	lc, err := h.enrollments.Get(r.Context(), fwd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := lc.Confirm(r.Context(), fwd, req.Otp); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Two-factor enabled"})
}

type confirmRequest struct {
	Enabled   bool `json:"bool"`
	Confirmed bool `json:"confirmed"`
}

// confirm2FA handles the explicit disable. Enabling goes through verifyOtp,
// which commits both steps; a bare enable request here is rejected so the
// flag can never be set without a checked code.
func (h *Handle) confirm2FA(w http.ResponseWriter, r *http.Request) {
	fwd, ok := h.authed(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	if req.Enabled {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "enable requires a verified code"))
		return
	}

	lc, err := h.enrollments.Get(r.Context(), fwd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := lc.Disable(r.Context(), fwd, req.Confirmed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

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
