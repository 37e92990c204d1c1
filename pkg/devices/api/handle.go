// Package api exposes the admin device registry endpoints
package api

import (
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/edusso/sso-proxy/pkg/devices"
	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/transport"
)

// Handle carries the dependencies of the admin device handlers
type Handle struct {
	svc     *devices.Service
	session *transport.SessionTransport
}

// NewHandle creates the admin device handler set
func NewHandle(svc *devices.Service, session *transport.SessionTransport) *Handle {
	return &Handle{svc: svc, session: session}
}

// Routes mounts the admin surface on the given router. Every route needs the
// access-token cookie; authorization beyond that is the backend's call.
func (h *Handle) Routes(r chi.Router) {
	r.Get("/devices", h.list)
	r.Patch("/devices/{id}/authorize", h.authorize)
	r.Patch("/devices/{id}/revoke", h.revoke)
}

func (h *Handle) authed(w http.ResponseWriter, r *http.Request) (transport.Forwarded, bool) {
	fwd := h.session.Forward(r)
	if fwd.AccessToken == "" {
		writeError(w, r, errors.Unauthenticated("no access token"))
		return fwd, false
	}
	return fwd, true
}

func (h *Handle) list(w http.ResponseWriter, r *http.Request) {
	fwd, ok := h.authed(w, r)
	if !ok {
		return
	}

	filter, err := devices.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := h.svc.List(r.Context(), fwd, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"results": records})
}

func (h *Handle) authorize(w http.ResponseWriter, r *http.Request) {
	fwd, ok := h.authed(w, r)
	if !ok {
		return
	}

	records, err := h.svc.Authorize(r.Context(), fwd, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"results": records})
}

func (h *Handle) revoke(w http.ResponseWriter, r *http.Request) {
	fwd, ok := h.authed(w, r)
	if !ok {
		return
	}

	records, err := h.svc.Revoke(r.Context(), fwd, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"results": records})
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
