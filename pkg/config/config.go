package config

import (
	"time"

	"github.com/tendant/chi-demo/app"
)

// BackendConfig describes how to reach the external identity backend.
// The backend is consumed as an opaque HTTP service with a fixed contract;
// every call carries the static API key.
type BackendConfig struct {
	BaseURL   string        `env:"API_URL" env-default:"http://localhost:8003"`
	APIKey    string        `env:"BACKEND_API_KEY"`
	MediaHost string        `env:"BACKEND_MEDIA_HOST"`
	Timeout   time.Duration `env:"BACKEND_TIMEOUT" env-default:"15s"`
}

// CookieConfig controls the browser-visible session cookies.
// HttpOnly is not configurable: session tokens are never exposed to script.
type CookieConfig struct {
	Secure bool `env:"COOKIE_SECURE" env-default:"true"`

	// TTLs for the standard credential login flow
	AccessTokenTTL  time.Duration `env:"ACCESS_COOKIE_TTL" env-default:"5m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_COOKIE_TTL" env-default:"168h"`

	// TTLs applied after a successful OTP step-up login
	OtpAccessTokenTTL  time.Duration `env:"OTP_ACCESS_COOKIE_TTL" env-default:"720h"`
	OtpRefreshTokenTTL time.Duration `env:"OTP_REFRESH_COOKIE_TTL" env-default:"1440h"`
}

// AgentConfig describes the optional local fingerprint agent probe.
type AgentConfig struct {
	URL     string        `env:"FINGERPRINT_AGENT_URL" env-default:"http://localhost:8888/status"`
	Timeout time.Duration `env:"FINGERPRINT_AGENT_TIMEOUT" env-default:"2s"`
}

// RateLimitConfig bounds the login and OTP endpoints to slow brute-force attempts.
type RateLimitConfig struct {
	LoginEnabled    bool    `env:"RATELIMIT_LOGIN_ENABLED" env-default:"true"`
	LoginCapacity   int     `env:"RATELIMIT_LOGIN_CAPACITY" env-default:"10"`
	LoginRefillRate float64 `env:"RATELIMIT_LOGIN_REFILL_RATE" env-default:"0.167"` // 10 per minute
}

// Config is the full proxy configuration, read from the environment with cleanenv.
type Config struct {
	AppConfig       app.AppConfig
	BackendConfig   BackendConfig
	CookieConfig    CookieConfig
	AgentConfig     AgentConfig
	RateLimitConfig RateLimitConfig
}
