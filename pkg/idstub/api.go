package idstub

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/ratelimit"
)

// Handle serves the stub's HTTP contract
type Handle struct {
	svc    *Service
	apiKey string
}

// NewHandle creates the stub handler set. An empty apiKey disables the
// API-Key check.
func NewHandle(svc *Service, apiKey string) *Handle {
	return &Handle{svc: svc, apiKey: apiKey}
}

// Routes builds the stub's full router
func (h *Handle) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireAPIKey)

	r.Post("/api/authentication/sso-login/", h.ssoLogin)
	r.Post("/api/authentication/secure-device-login/", h.deviceLogin)
	r.Post("/api/authentication/verify_otp_login/", h.verifyOtpLogin)
	r.Post("/auth/jwt/refresh/", h.refresh)
	r.Post("/auth/jwt/verify/", h.verify)

	r.Group(func(r chi.Router) {
		r.Use(h.svc.tokens.Verifier())
		r.Use(h.svc.tokens.Authenticator())

		r.Post("/api/sso/logout/", h.logout)
		r.Get("/auth/users/me/", h.me)
		r.Post("/auth/users/set_password/", h.setPassword)
		r.Get("/api/profile/my_profile/", h.profile)
		r.Get("/api/authentication/mis-sistemas/", h.systems)
		r.Get("/api/authentication/generate_qr_code/", h.generateQR)
		r.Post("/api/authentication/verify_otp/", h.verifyOTP)
		r.Post("/api/authentication/confirm_2fa/", h.confirm2FA)
		r.Get("/api/authentication/user-devices/", h.listDevices)
		r.Patch("/api/authentication/user-devices/{id}/authorize/", h.authorizeDevice)
		r.Patch("/api/authentication/user-devices/{id}/revoke/", h.revokeDevice)
	})

	return r
}

func (h *Handle) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" && r.Header.Get("API-Key") != h.apiKey {
			writeDetail(w, r, http.StatusForbidden, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// subject pulls the account email from the verified token in the context
func subject(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

type loginBody struct {
	Email      string                 `json:"email"`
	Password   string                 `json:"password"`
	DeviceHash string                 `json:"hash-device"`
	Components map[string]interface{} `json:"componentes"`
}

func (h *Handle) writeLoginResult(w http.ResponseWriter, r *http.Request, result *LoginResult) {
	results := map[string]interface{}{
		"otp_required": result.OtpRequired,
	}
	if result.Message != "" {
		results["message"] = result.Message
	}
	if result.Access != "" {
		results["access"] = result.Access
		results["refresh"] = result.Refresh
	}
	render.JSON(w, r, map[string]interface{}{"results": results})
}

func (h *Handle) ssoLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeLoginResult(w, r, result)
}

func (h *Handle) deviceLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.DeviceLogin(r.Context(), body.Email, body.Password, body.DeviceHash, ratelimit.ClientIP(r), body.Components)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeLoginResult(w, r, result)
}

type otpLoginBody struct {
	Email string `json:"email"`
	Otp   string `json:"otp"`
}

func (h *Handle) verifyOtpLogin(w http.ResponseWriter, r *http.Request) {
	var body otpLoginBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.VerifyOtpLogin(r.Context(), body.Email, body.Otp)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeLoginResult(w, r, result)
}

func (h *Handle) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	access, err := h.svc.Refresh(r.Context(), body.Refresh)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"access": access})
}

func (h *Handle) verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Verify(r.Context(), body.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Token is valid"})
}

func (h *Handle) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "sessionid",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
	render.JSON(w, r, map[string]string{"detail": "Logged out"})
}

func (h *Handle) me(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.svc.accounts.Get(subject(r))
	if !ok {
		writeDetail(w, r, http.StatusUnauthorized, "unknown account")
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"id":                 acct.ID.String(),
		"username":           acct.Username,
		"email":              acct.Email,
		"first_name":         acct.FirstName,
		"last_name":          acct.LastName,
		"two_factor_enabled": acct.TwoFactorEnabled,
	})
}

func (h *Handle) profile(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.svc.accounts.Get(subject(r))
	if !ok {
		writeDetail(w, r, http.StatusUnauthorized, "unknown account")
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"results": map[string]interface{}{
			"username":   acct.Username,
			"first_name": acct.FirstName,
			"last_name":  acct.LastName,
			"photo":      "/media/avatars/" + acct.Username + ".png",
		},
	})
}

func (h *Handle) systems(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.svc.accounts.Get(subject(r))
	if !ok {
		writeDetail(w, r, http.StatusUnauthorized, "unknown account")
		return
	}

	role := "user"
	if acct.IsAdmin {
		role = "admin"
	}
	render.JSON(w, r, map[string]interface{}{
		"results": map[string]interface{}{
			"usuario": map[string]interface{}{
				"nombre": acct.FirstName + " " + acct.LastName,
				"rol":    map[string]string{"nombre": role},
			},
			"sistemas": []map[string]interface{}{
				{"id": 1, "nombre": "Portal", "descripcion": "Main portal", "url": "https://portal.example.com", "icono": "portal", "color": "#1f6feb"},
			},
		},
	})
}

func (h *Handle) generateQR(w http.ResponseWriter, r *http.Request) {
	uri, err := h.svc.GenerateQR(r.Context(), subject(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"results": uri})
}

func (h *Handle) setPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.SetPassword(r.Context(), subject(r), body.CurrentPassword, body.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Otp string `json:"otp"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.VerifyOTP(r.Context(), subject(r), body.Otp); err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Code verified"})
}

func (h *Handle) confirm2FA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"bool"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Confirm2FA(r.Context(), subject(r), body.Enabled); err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Two-factor state confirmed"})
}

func deviceJSON(rec DeviceRecord, acct *Account) map[string]interface{} {
	user := map[string]interface{}{}
	if acct != nil {
		user["username"] = acct.Username
		user["first_name"] = acct.FirstName
		user["last_name"] = acct.LastName
		user["email"] = acct.Email
	}

	var lastLogin interface{}
	if rec.LastLogin != nil {
		lastLogin = rec.LastLogin.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"id":   rec.ID.String(),
		"user": user,
		"device": map[string]interface{}{
			"id":          rec.ID.String(),
			"device_hash": rec.DeviceHash,
			"hostname":    rec.Hostname,
			"os":          rec.OS,
			"created_at":  rec.CreatedAt.Format(time.RFC3339),
		},
		"fingerprint": rec.Components,
		"authorized":  rec.Authorized,
		"last_login":  lastLogin,
		"last_ip":     rec.LastIP,
	}
}

func (h *Handle) listDevices(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListDevices(r.Context(), subject(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	results := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		acct, _ := h.svc.accounts.Get(rec.OwnerEmail)
		results = append(results, deviceJSON(rec, acct))
	}
	render.JSON(w, r, map[string]interface{}{"results": results})
}

func (h *Handle) setDeviceAuthorized(w http.ResponseWriter, r *http.Request, authorized bool) {
	err := h.svc.SetDeviceAuthorized(r.Context(), subject(r), chi.URLParam(r, "id"), authorized)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"detail": "Device updated"})
}

func (h *Handle) authorizeDevice(w http.ResponseWriter, r *http.Request) {
	h.setDeviceAuthorized(w, r, true)
}

func (h *Handle) revokeDevice(w http.ResponseWriter, r *http.Request) {
	h.setDeviceAuthorized(w, r, false)
}

func writeDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"detail": detail})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.Error
	if !stderrors.As(err, &appErr) {
		writeDetail(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeDetail(w, r, appErr.HTTPStatusCode(), appErr.Message)
}
