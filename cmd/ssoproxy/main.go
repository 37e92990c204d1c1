package main

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"

	"github.com/edusso/sso-proxy/pkg/authflow"
	authflowapi "github.com/edusso/sso-proxy/pkg/authflow/api"
	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/config"
	"github.com/edusso/sso-proxy/pkg/devices"
	devicesapi "github.com/edusso/sso-proxy/pkg/devices/api"
	"github.com/edusso/sso-proxy/pkg/fingerprint"
	"github.com/edusso/sso-proxy/pkg/ratelimit"
	"github.com/edusso/sso-proxy/pkg/transport"
	"github.com/edusso/sso-proxy/pkg/twofa"
	twofaapi "github.com/edusso/sso-proxy/pkg/twofa/api"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	cfg := config.Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)

	client := backend.NewClient(cfg.BackendConfig)
	collector := fingerprint.NewCollector(cfg.AgentConfig)

	session := transport.NewSessionTransport(cfg.CookieConfig.Secure,
		transport.WithSessionTTLs(cfg.CookieConfig.AccessTokenTTL, cfg.CookieConfig.RefreshTokenTTL),
		transport.WithOtpSessionTTLs(cfg.CookieConfig.OtpAccessTokenTTL, cfg.CookieConfig.OtpRefreshTokenTTL),
	)

	loginService := authflow.NewService(client, authflow.WithCollector(collector))
	limiter := ratelimit.NewLoginLimiter(cfg.RateLimitConfig)

	authHandle := authflowapi.NewHandle(loginService, client, session, authflowapi.WithLoginLimiter(limiter))
	twofaHandle := twofaapi.NewHandle(twofa.NewService(client), session)
	devicesHandle := devicesapi.NewHandle(devices.NewService(client), session)

	server.R.Route("/auth", func(r chi.Router) {
		authHandle.Routes(r)
		twofaHandle.Routes(r)
	})
	server.R.Route("/admin", devicesHandle.Routes)

	slog.Info("Starting SSO proxy",
		"backend", cfg.BackendConfig.BaseURL,
		"agent", cfg.AgentConfig.URL,
		"secure_cookies", cfg.CookieConfig.Secure,
		"login_ratelimit", cfg.RateLimitConfig.LoginEnabled)

	server.Run()
}
