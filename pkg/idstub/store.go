// Package idstub is a self-contained identity backend used for local
// development and integration tests. It speaks the same HTTP contract the
// proxy consumes: credential login, device-bound login, TOTP step-up, JWT
// refresh/verify, 2FA lifecycle and the admin device registry.
package idstub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/edusso/sso-proxy/pkg/errors"
)

// Account is one identity record
type Account struct {
	ID               uuid.UUID
	Username         string
	Email            string
	FirstName        string
	LastName         string
	PasswordHash     []byte
	TwoFactorEnabled bool
	IsAdmin          bool

	// TOTPSecret is the active secret once 2FA is enabled.
	TOTPSecret string
	// PendingSecret holds a provisioned but unconfirmed secret.
	PendingSecret string
	// PendingVerified flips after a successful code check and gates the
	// confirm step.
	PendingVerified bool
}

// AccountStore keeps accounts in memory, keyed by email
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewAccountStore creates an empty account store
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]*Account)}
}

// Seed registers an account with the given plaintext password
func (s *AccountStore) Seed(email, username, password string, admin bool) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acct := &Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      admin,
	}

	s.mu.Lock()
	s.accounts[email] = acct
	s.mu.Unlock()
	return acct, nil
}

// Get looks up an account by email
func (s *AccountStore) Get(email string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[email]
	return acct, ok
}

// Update applies fn to the account under the store lock
func (s *AccountStore) Update(email string, fn func(*Account)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[email]
	if !ok {
		return false
	}
	fn(acct)
	return true
}

// DeviceRecord is one server-observed device
type DeviceRecord struct {
	ID         uuid.UUID
	OwnerEmail string
	DeviceHash string
	Hostname   string
	OS         string
	Components map[string]interface{}
	Authorized bool
	LastLogin  *time.Time
	LastIP     string
	CreatedAt  time.Time
}

// DeviceRepository stores device records. Implementations exist in memory
// and on Postgres.
type DeviceRepository interface {
	// Touch records a login attempt from the device, creating the record
	// on first sight. Returns the stored record.
	Touch(ctx context.Context, ownerEmail, deviceHash, hostname, ip string, components map[string]interface{}) (DeviceRecord, error)
	// List returns every record
	List(ctx context.Context) ([]DeviceRecord, error)
	// SetAuthorized flips the trust bit for a record
	SetAuthorized(ctx context.Context, id uuid.UUID, authorized bool) error
}

// InMemDeviceRepository is the default repository
type InMemDeviceRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*DeviceRecord
	byHash  map[string]uuid.UUID
}

// NewInMemDeviceRepository creates an empty in-memory repository
func NewInMemDeviceRepository() *InMemDeviceRepository {
	return &InMemDeviceRepository{
		records: make(map[uuid.UUID]*DeviceRecord),
		byHash:  make(map[string]uuid.UUID),
	}
}

// Touch implements DeviceRepository
func (r *InMemDeviceRepository) Touch(ctx context.Context, ownerEmail, deviceHash, hostname, ip string, components map[string]interface{}) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := r.byHash[deviceHash]; ok {
		rec := r.records[id]
		rec.LastLogin = &now
		rec.LastIP = ip
		return *rec, nil
	}

	rec := &DeviceRecord{
		ID:         uuid.New(),
		OwnerEmail: ownerEmail,
		DeviceHash: deviceHash,
		Hostname:   hostname,
		OS:         "unknown",
		Components: components,
		Authorized: false,
		LastLogin:  &now,
		LastIP:     ip,
		CreatedAt:  now,
	}
	r.records[rec.ID] = rec
	r.byHash[deviceHash] = rec.ID
	return *rec, nil
}

// List implements DeviceRepository
func (r *InMemDeviceRepository) List(ctx context.Context) ([]DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DeviceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out, nil
}

// SetAuthorized implements DeviceRepository
func (r *InMemDeviceRepository) SetAuthorized(ctx context.Context, id uuid.UUID, authorized bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "device not found")
	}
	rec.Authorized = authorized
	return nil
}
