package idstub

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sso_db"),
		postgres.WithUsername("sso"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)
	return pool
}

func TestPostgresDeviceRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}

	pool := setupTestDatabase(t)
	repo := NewPostgresDeviceRepository(pool)
	ctx := context.Background()

	components := map[string]interface{}{"nombre_maquina": "WS-01", "uuid_sistema": "u1"}

	rec, err := repo.Touch(ctx, "user@example.com", "hash-1", "WS-01", "10.0.0.1", components)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", rec.OwnerEmail)
	assert.False(t, rec.Authorized)
	require.NotNil(t, rec.LastLogin)
	assert.Equal(t, "WS-01", rec.Components["nombre_maquina"])

	// A second touch of the same hash updates rather than duplicates.
	again, err := repo.Touch(ctx, "user@example.com", "hash-1", "WS-01", "10.0.0.2", components)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, "10.0.0.2", again.LastIP)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, repo.SetAuthorized(ctx, rec.ID, true))
	all, err = repo.List(ctx)
	require.NoError(t, err)
	assert.True(t, all[0].Authorized)
}

func TestPostgresDeviceRepository_SetAuthorizedUnknown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}

	pool := setupTestDatabase(t)
	repo := NewPostgresDeviceRepository(pool)

	err := repo.SetAuthorized(context.Background(), uuid.New(), true)
	assert.Error(t, err)
}
