package idstub

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/edusso/sso-proxy/pkg/errors"
)

// Issuer is the name stamped into otpauth provisioning URIs
const Issuer = "EduSSO"

// Service implements the identity backend's behavior over the stores
type Service struct {
	accounts *AccountStore
	devices  DeviceRepository
	tokens   *TokenIssuer
}

// NewService wires the stub's service layer
func NewService(accounts *AccountStore, devices DeviceRepository, tokens *TokenIssuer) *Service {
	return &Service{accounts: accounts, devices: devices, tokens: tokens}
}

// LoginResult is the outcome of a credential login
type LoginResult struct {
	OtpRequired bool
	Message     string
	Access      string
	Refresh     string
}

func (s *Service) checkCredentials(email, password string) (*Account, error) {
	acct, ok := s.accounts.Get(email)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidCredentials, "Invalid credentials").WithStatus(401)
	}
	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)) != nil {
		return nil, errors.New(errors.ErrCodeInvalidCredentials, "Invalid credentials").WithStatus(401)
	}
	return acct, nil
}

func (s *Service) loginOutcome(acct *Account) (*LoginResult, error) {
	if acct.TwoFactorEnabled {
		return &LoginResult{OtpRequired: true, Message: "One-time code required"}, nil
	}
	access, refresh, err := s.tokens.IssuePair(acct.Email)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to issue tokens")
	}
	return &LoginResult{Access: access, Refresh: refresh}, nil
}

// Login handles the standard credential login
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	acct, err := s.checkCredentials(email, password)
	if err != nil {
		return nil, err
	}
	return s.loginOutcome(acct)
}

// DeviceLogin handles the device-bound login. The device is recorded on
// every attempt; an unauthorized device is refused even with valid
// credentials, which is what fills the pending queue for admins.
func (s *Service) DeviceLogin(ctx context.Context, email, password, deviceHash, ip string, components map[string]interface{}) (*LoginResult, error) {
	acct, err := s.checkCredentials(email, password)
	if err != nil {
		return nil, err
	}
	if deviceHash == "" {
		return nil, errors.ValidationFailed("hash-device", "device hash is required").WithStatus(400)
	}

	hostname, _ := components["nombre_maquina"].(string)
	record, err := s.devices.Touch(ctx, email, deviceHash, hostname, ip, components)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to record device")
	}

	if !record.Authorized {
		slog.Info("login refused from unauthorized device", "email", email, "device_id", record.ID)
		return nil, errors.New(errors.ErrCodeForbidden, "Device is not authorized").WithStatus(403)
	}
	return s.loginOutcome(acct)
}

// VerifyOtpLogin completes a challenged login with a TOTP code
func (s *Service) VerifyOtpLogin(ctx context.Context, email, code string) (*LoginResult, error) {
	acct, ok := s.accounts.Get(email)
	if !ok || !acct.TwoFactorEnabled || acct.TOTPSecret == "" {
		return nil, errors.New(errors.ErrCodeInvalidCredentials, "Invalid credentials").WithStatus(401)
	}
	if !totp.Validate(code, acct.TOTPSecret) {
		return nil, errors.New(errors.ErrCodeInvalidChallenge, "Invalid one-time code").WithStatus(401)
	}

	access, refresh, err := s.tokens.IssuePair(acct.Email)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to issue tokens")
	}
	return &LoginResult{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	email, err := s.tokens.Subject(refreshToken, "refresh")
	if err != nil {
		return "", err
	}
	access, err := s.tokens.issue(email, "access", s.tokens.accessTTL)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to issue token")
	}
	return access, nil
}

// Verify checks an access token
func (s *Service) Verify(ctx context.Context, accessToken string) error {
	_, err := s.tokens.Subject(accessToken, "access")
	return err
}

// SetPassword replaces the account's password after checking the current one
func (s *Service) SetPassword(ctx context.Context, email, current, updated string) error {
	acct, ok := s.accounts.Get(email)
	if !ok {
		return errors.Unauthenticated("unknown account")
	}
	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(current)) != nil {
		return errors.New(errors.ErrCodeInvalidCredentials, "Invalid password.").WithStatus(400)
	}
	if updated == "" {
		return errors.ValidationFailed("new_password", "This field may not be blank.").WithStatus(400)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(updated), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}
	s.accounts.Update(email, func(a *Account) {
		a.PasswordHash = hash
	})
	return nil
}

// GenerateQR provisions a new TOTP secret for the account and returns the
// otpauth URI. The secret stays pending until verified and confirmed.
func (s *Service) GenerateQR(ctx context.Context, email string) (string, error) {
	acct, ok := s.accounts.Get(email)
	if !ok {
		return "", errors.Unauthenticated("unknown account")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: acct.Email,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to provision secret")
	}

	s.accounts.Update(email, func(a *Account) {
		a.PendingSecret = key.Secret()
		a.PendingVerified = false
	})
	return key.URL(), nil
}

// VerifyOTP checks a code against the pending secret and marks it verified
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	acct, ok := s.accounts.Get(email)
	if !ok {
		return errors.Unauthenticated("unknown account")
	}
	if acct.PendingSecret == "" {
		return errors.New(errors.ErrCodeInvalidInput, "no provisioning in progress").WithStatus(400)
	}
	if !totp.Validate(code, acct.PendingSecret) {
		return errors.New(errors.ErrCodeInvalidChallenge, "Invalid one-time code").WithStatus(400)
	}

	s.accounts.Update(email, func(a *Account) {
		a.PendingVerified = true
	})
	return nil
}

// Confirm2FA settles the two-factor flag. Enabling requires a previously
// verified pending secret; disabling drops the active secret.
func (s *Service) Confirm2FA(ctx context.Context, email string, enabled bool) error {
	acct, ok := s.accounts.Get(email)
	if !ok {
		return errors.Unauthenticated("unknown account")
	}

	if enabled {
		if !acct.PendingVerified || acct.PendingSecret == "" {
			return errors.New(errors.ErrCodeInvalidInput, "code has not been verified").WithStatus(400)
		}
		s.accounts.Update(email, func(a *Account) {
			a.TOTPSecret = a.PendingSecret
			a.PendingSecret = ""
			a.PendingVerified = false
			a.TwoFactorEnabled = true
		})
		return nil
	}

	s.accounts.Update(email, func(a *Account) {
		a.TOTPSecret = ""
		a.PendingSecret = ""
		a.PendingVerified = false
		a.TwoFactorEnabled = false
	})
	return nil
}

// ListDevices returns the full registry. Only admins may look.
func (s *Service) ListDevices(ctx context.Context, email string) ([]DeviceRecord, error) {
	if err := s.requireAdmin(email); err != nil {
		return nil, err
	}
	return s.devices.List(ctx)
}

// SetDeviceAuthorized flips a record's trust bit. Only admins may decide.
func (s *Service) SetDeviceAuthorized(ctx context.Context, email string, id string, authorized bool) error {
	if err := s.requireAdmin(email); err != nil {
		return err
	}
	deviceID, err := parseUUID(id)
	if err != nil {
		return err
	}
	return s.devices.SetAuthorized(ctx, deviceID, authorized)
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.ValidationFailed("id", "invalid device id")
	}
	return id, nil
}

func (s *Service) requireAdmin(email string) error {
	acct, ok := s.accounts.Get(email)
	if !ok {
		return errors.Unauthenticated("unknown account")
	}
	if !acct.IsAdmin {
		return errors.Forbidden("admin role required").WithStatus(403)
	}
	return nil
}
