package backend

// Fixed contract of the external identity backend. Every endpoint has an
// explicit response type; optional fields are pointers rather than values
// fished out of dynamic maps.

// LoginRequest is the body for both the standard SSO and the device-bound
// login endpoints. DeviceHash and Components ride along only when the local
// agent supplied them.
type LoginRequest struct {
	Email      string                 `json:"email"`
	Password   string                 `json:"password"`
	DeviceHash string                 `json:"hash-device,omitempty"`
	Components map[string]interface{} `json:"componentes,omitempty"`
}

// LoginResults is the inner payload of a successful login response.
// The backend answers with otp_required when the account has 2FA enabled;
// in that case the token pair must be ignored even if present.
type LoginResults struct {
	OtpRequired bool    `json:"otp_required"`
	Message     string  `json:"message,omitempty"`
	Access      *string `json:"access,omitempty"`
	Refresh     *string `json:"refresh,omitempty"`
}

// LoginResponse is the top-level login response envelope
type LoginResponse struct {
	Results LoginResults `json:"results"`
}

// OtpLoginRequest is the body for the second login step
type OtpLoginRequest struct {
	Email string `json:"email"`
	Otp   string `json:"otp"`
}

// User is the account aggregate served by the backend
type User struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// SetPasswordRequest changes the authenticated account's password
type SetPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Profile is the presentation-side profile aggregate. The proxy does not
// interpret it beyond asset URL normalization; it is relayed as-is.
type Profile struct {
	Results map[string]interface{} `json:"results"`
}

// System is one entry of the per-user systems listing
type System struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
	URL         string `json:"url"`
	Icon        string `json:"icono"`
	Color       string `json:"color"`
}

// SystemsUser is the user header of the systems listing
type SystemsUser struct {
	Name string `json:"nombre"`
	Role struct {
		Name string `json:"nombre"`
	} `json:"rol"`
}

// SystemsResults is the inner payload of the systems listing
type SystemsResults struct {
	User    SystemsUser `json:"usuario"`
	Systems []System    `json:"sistemas"`
}

// SystemsResponse is the top-level systems listing envelope
type SystemsResponse struct {
	Results SystemsResults `json:"results"`
}

// QRCodeResponse carries the 2FA provisioning URI (rendered as a QR client-side)
type QRCodeResponse struct {
	Results string `json:"results"`
}

// VerifyOtpRequest is the body for the 2FA enrollment OTP check
type VerifyOtpRequest struct {
	Otp string `json:"otp"`
}

// ConfirmTwoFaRequest commits enabling or disabling 2FA
type ConfirmTwoFaRequest struct {
	Enabled bool `json:"bool"`
}

// DeviceFingerprint holds the hardware-derived component values reported by
// the local agent. Display-only forensic metadata on the admin side.
type DeviceFingerprint struct {
	SystemUUID      string `json:"uuid_sistema"`
	CPUSerial       string `json:"numero_serie_cpu"`
	DiskSerial      string `json:"numero_serie_disco"`
	BaseboardSerial string `json:"baseboard_serial"`
	BiosSerial      string `json:"bios_serial"`
	MacAddress      string `json:"mac_address"`
	Hostname        string `json:"nombre_maquina"`
}

// DeviceOwner identifies the user a device record belongs to
type DeviceOwner struct {
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     *string `json:"email,omitempty"`
}

// DeviceInfo is the hardware identity part of a device record
type DeviceInfo struct {
	ID         string `json:"id"`
	DeviceHash string `json:"device_hash"`
	Hostname   string `json:"hostname"`
	OS         string `json:"os"`
	CreatedAt  string `json:"created_at"`
}

// UserDevice is one server-observed device record. The authorized bit flips
// only through the admin endpoints, never from the owning user's side.
type UserDevice struct {
	ID          string             `json:"id"`
	User        DeviceOwner        `json:"user"`
	Device      DeviceInfo         `json:"device"`
	Fingerprint *DeviceFingerprint `json:"fingerprint"`
	Authorized  bool               `json:"authorized"`
	LastLogin   *string            `json:"last_login"`
	LastIP      *string            `json:"last_ip"`
}

// UserDevicesResponse is the device listing envelope
type UserDevicesResponse struct {
	Results []UserDevice `json:"results"`
}

// ErrorDetail is the backend's error body shape
type ErrorDetail struct {
	Detail string `json:"detail"`
}
