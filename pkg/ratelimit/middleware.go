package ratelimit

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/edusso/sso-proxy/pkg/config"
)

// LoginLimiter throttles the credential and OTP login endpoints per client
// IP. Other routes are not limited; they all require a valid session anyway.
type LoginLimiter struct {
	enabled bool
	limiter *RateLimiter
}

// NewLoginLimiter builds a LoginLimiter from configuration
func NewLoginLimiter(cfg config.RateLimitConfig) *LoginLimiter {
	if !cfg.LoginEnabled {
		return &LoginLimiter{}
	}
	return &LoginLimiter{
		enabled: true,
		limiter: NewRateLimiter(cfg.LoginCapacity, cfg.LoginRefillRate, time.Hour),
	}
}

// Handler is a chi middleware guarding the route it wraps
func (l *LoginLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.enabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		if !l.limiter.Allow(ip) {
			slog.Warn("login rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, map[string]string{
				"error":   "rate_limit_exceeded",
				"message": "Too many login attempts. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Succeeded refills the caller's bucket after a completed login so the next
// legitimate session is not penalized by earlier typos.
func (l *LoginLimiter) Succeeded(r *http.Request) {
	if l.enabled {
		l.limiter.Reset(ClientIP(r))
	}
}

// ClientIP extracts the client address, honoring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
