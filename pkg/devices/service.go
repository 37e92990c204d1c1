// Package devices is the admin view over the device trust registry. Records
// live on the backend; this package classifies them for listing and relays
// the authorize/revoke decisions.
package devices

import (
	"context"
	"log/slog"

	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/transport"
)

// Filter selects a slice of the registry by trust status
type Filter string

const (
	// FilterAll returns every record
	FilterAll Filter = "all"
	// FilterAuthorized returns devices an admin has approved
	FilterAuthorized Filter = "authorized"
	// FilterPending returns unapproved devices that have attempted a login
	FilterPending Filter = "pending"
	// FilterBlocked returns every unapproved device. Pending records are a
	// subset of blocked ones; both views exist on purpose.
	FilterBlocked Filter = "blocked"
)

// ParseFilter maps a query value to a Filter, defaulting to all
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case FilterAll, "":
		return FilterAll, nil
	case FilterAuthorized:
		return FilterAuthorized, nil
	case FilterPending:
		return FilterPending, nil
	case FilterBlocked:
		return FilterBlocked, nil
	default:
		return "", errors.ValidationFailed("filter", "unknown filter "+s)
	}
}

// Matches reports whether a record belongs to the filtered view
func (f Filter) Matches(d backend.UserDevice) bool {
	switch f {
	case FilterAuthorized:
		return d.Authorized
	case FilterPending:
		return !d.Authorized && d.LastLogin != nil
	case FilterBlocked:
		return !d.Authorized
	default:
		return true
	}
}

// Service lists and mutates the registry through the backend
type Service struct {
	client *backend.Client
}

// NewService creates a device registry service
func NewService(client *backend.Client) *Service {
	return &Service{client: client}
}

// List fetches the full registry and applies the filter locally. The
// classification is always computed over the complete fetched set.
func (s *Service) List(ctx context.Context, fwd transport.Forwarded, filter Filter) ([]Record, error) {
	all, err := s.client.ListUserDevices(ctx, fwd)
	if err != nil {
		return nil, err
	}

	if filter == FilterAll {
		return toRecords(all)
	}

	filtered := make([]backend.UserDevice, 0, len(all))
	for _, d := range all {
		if filter.Matches(d) {
			filtered = append(filtered, d)
		}
	}
	return toRecords(filtered)
}

// Authorize approves a device and returns the refetched registry. The
// mutated record is never patched locally; the backend's answer is the only
// state.
func (s *Service) Authorize(ctx context.Context, fwd transport.Forwarded, deviceID string) ([]Record, error) {
	if deviceID == "" {
		return nil, errors.ValidationFailed("id", "device id is required")
	}
	if err := s.client.AuthorizeDevice(ctx, fwd, deviceID); err != nil {
		return nil, err
	}
	slog.Info("device authorized", "device_id", deviceID)
	return s.refetch(ctx, fwd)
}

// Revoke withdraws approval and returns the refetched registry
func (s *Service) Revoke(ctx context.Context, fwd transport.Forwarded, deviceID string) ([]Record, error) {
	if deviceID == "" {
		return nil, errors.ValidationFailed("id", "device id is required")
	}
	if err := s.client.RevokeDevice(ctx, fwd, deviceID); err != nil {
		return nil, err
	}
	slog.Info("device revoked", "device_id", deviceID)
	return s.refetch(ctx, fwd)
}

func (s *Service) refetch(ctx context.Context, fwd transport.Forwarded) ([]Record, error) {
	all, err := s.client.ListUserDevices(ctx, fwd)
	if err != nil {
		return nil, err
	}
	return toRecords(all)
}
