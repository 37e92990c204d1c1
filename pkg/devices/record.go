package devices

import (
	"github.com/jinzhu/copier"

	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/errors"
)

// Record is the admin-facing shape of a registry entry. It drops the raw
// hardware fingerprint and carries a derived trust status instead.
type Record struct {
	ID         string              `json:"id"`
	User       backend.DeviceOwner `json:"user"`
	Device     backend.DeviceInfo  `json:"device"`
	Authorized bool                `json:"authorized"`
	LastLogin  *string             `json:"last_login"`
	LastIP     *string             `json:"last_ip"`
	Status     string              `json:"status"`
}

func statusOf(d backend.UserDevice) string {
	switch {
	case d.Authorized:
		return string(FilterAuthorized)
	case d.LastLogin != nil:
		return string(FilterPending)
	default:
		return string(FilterBlocked)
	}
}

func toRecords(all []backend.UserDevice) ([]Record, error) {
	records := make([]Record, 0, len(all))
	for _, d := range all {
		var rec Record
		if err := copier.Copy(&rec, &d); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to map device record")
		}
		rec.Status = statusOf(d)
		records = append(records, rec)
	}
	return records, nil
}
