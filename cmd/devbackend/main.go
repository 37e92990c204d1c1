// devbackend runs the self-contained identity backend stub. It exists so
// the proxy can be developed and demoed without the real backend: seeded
// accounts, in-memory or Postgres device storage, real JWTs and TOTP.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"

	"github.com/edusso/sso-proxy/pkg/idstub"
)

type stubConfig struct {
	AppConfig app.AppConfig

	APIKey     string        `env:"STUB_API_KEY" env-default:"dev-api-key"`
	JWTSecret  string        `env:"STUB_JWT_SECRET" env-default:"dev-signing-secret"`
	AccessTTL  time.Duration `env:"STUB_ACCESS_TTL" env-default:"5m"`
	RefreshTTL time.Duration `env:"STUB_REFRESH_TTL" env-default:"168h"`

	// DatabaseURL switches device storage to Postgres when set.
	DatabaseURL string `env:"STUB_DATABASE_URL"`

	SeedEmail    string `env:"STUB_SEED_EMAIL" env-default:"user@example.com"`
	SeedPassword string `env:"STUB_SEED_PASSWORD" env-default:"password123"`
	AdminEmail   string `env:"STUB_ADMIN_EMAIL" env-default:"admin@example.com"`
	AdminPass    string `env:"STUB_ADMIN_PASSWORD" env-default:"admin123"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	cfg := stubConfig{}
	cleanenv.ReadEnv(&cfg)

	accounts := idstub.NewAccountStore()
	if _, err := accounts.Seed(cfg.SeedEmail, "jdoe", cfg.SeedPassword, false); err != nil {
		slog.Error("Failed to seed user account", "err", err)
		os.Exit(1)
	}
	if _, err := accounts.Seed(cfg.AdminEmail, "root", cfg.AdminPass, true); err != nil {
		slog.Error("Failed to seed admin account", "err", err)
		os.Exit(1)
	}

	var repo idstub.DeviceRepository = idstub.NewInMemDeviceRepository()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "err", err)
			os.Exit(1)
		}
		if _, err := pool.Exec(context.Background(), idstub.Schema); err != nil {
			slog.Error("Failed to apply device schema", "err", err)
			os.Exit(1)
		}
		repo = idstub.NewPostgresDeviceRepository(pool)
		slog.Info("Device records stored in Postgres")
	}

	tokens := idstub.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	svc := idstub.NewService(accounts, repo, tokens)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	server.R.Mount("/", idstub.NewHandle(svc, cfg.APIKey).Routes())

	slog.Info("Starting identity backend stub",
		"seed_user", cfg.SeedEmail,
		"seed_admin", cfg.AdminEmail,
		"postgres", cfg.DatabaseURL != "")

	server.Run()
}
