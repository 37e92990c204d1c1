package idstub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edusso/sso-proxy/pkg/errors"
)

// DBTX allows the repository to run on a pool, a connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresDeviceRepository persists device records in Postgres
type PostgresDeviceRepository struct {
	db DBTX
}

// NewPostgresDeviceRepository creates a Postgres-backed repository
func NewPostgresDeviceRepository(db DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

// Schema is the repository's table definition, applied by callers that own
// the database lifecycle (migrations in production, init scripts in tests).
const Schema = `
CREATE TABLE IF NOT EXISTS user_device (
	id UUID PRIMARY KEY,
	owner_email TEXT NOT NULL,
	device_hash TEXT NOT NULL UNIQUE,
	hostname TEXT NOT NULL DEFAULT '',
	os TEXT NOT NULL DEFAULT 'unknown',
	components JSONB,
	authorized BOOLEAN NOT NULL DEFAULT FALSE,
	last_login TIMESTAMPTZ,
	last_ip TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Touch implements DeviceRepository
func (r *PostgresDeviceRepository) Touch(ctx context.Context, ownerEmail, deviceHash, hostname, ip string, components map[string]interface{}) (DeviceRecord, error) {
	componentsJSON, err := json.Marshal(components)
	if err != nil {
		return DeviceRecord{}, err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO user_device (id, owner_email, device_hash, hostname, components, last_login, last_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_hash) DO UPDATE SET last_login = $6, last_ip = $7
		RETURNING id, owner_email, device_hash, hostname, os, components, authorized, last_login, last_ip, created_at
	`
	row := r.db.QueryRow(ctx, query, uuid.New(), ownerEmail, deviceHash, hostname, componentsJSON, now, ip, now)
	return scanDevice(row)
}

// List implements DeviceRepository
func (r *PostgresDeviceRepository) List(ctx context.Context) ([]DeviceRecord, error) {
	query := `
		SELECT id, owner_email, device_hash, hostname, os, components, authorized, last_login, last_ip, created_at
		FROM user_device
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		rec, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetAuthorized implements DeviceRepository
func (r *PostgresDeviceRepository) SetAuthorized(ctx context.Context, id uuid.UUID, authorized bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE user_device SET authorized = $2 WHERE id = $1`, id, authorized)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeNotFound, "device not found")
	}
	return nil
}

func scanDevice(row pgx.Row) (DeviceRecord, error) {
	var rec DeviceRecord
	var componentsJSON []byte
	err := row.Scan(
		&rec.ID,
		&rec.OwnerEmail,
		&rec.DeviceHash,
		&rec.Hostname,
		&rec.OS,
		&componentsJSON,
		&rec.Authorized,
		&rec.LastLogin,
		&rec.LastIP,
		&rec.CreatedAt,
	)
	if err != nil {
		return DeviceRecord{}, err
	}
	if len(componentsJSON) > 0 {
		if err := json.Unmarshal(componentsJSON, &rec.Components); err != nil {
			return DeviceRecord{}, err
		}
	}
	return rec, nil
}
