package idstub

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/edusso/sso-proxy/pkg/errors"
)

// TokenIssuer mints and checks the HMAC JWTs the stub hands out
type TokenIssuer struct {
	secret     []byte
	auth       *jwtauth.JWTAuth
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates an issuer with the given signing secret
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		auth:       jwtauth.New("HS256", []byte(secret), nil),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (i *TokenIssuer) issue(email, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        email,
		"token_type": tokenType,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
	return token.SignedString(i.secret)
}

// IssuePair mints an access and refresh token for the account
func (i *TokenIssuer) IssuePair(email string) (access, refresh string, err error) {
	if access, err = i.issue(email, "access", i.accessTTL); err != nil {
		return "", "", err
	}
	if refresh, err = i.issue(email, "refresh", i.refreshTTL); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Subject checks a token of the expected type and returns its subject
func (i *TokenIssuer) Subject(tokenString, wantType string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.Unauthenticated("token is invalid or expired")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.Unauthenticated("token carries no claims")
	}
	if claims["token_type"] != wantType {
		return "", errors.Unauthenticated("wrong token type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.Unauthenticated("token carries no subject")
	}
	return sub, nil
}

// Verifier returns middleware that populates the request context from the
// Authorization header, which uses the JWT scheme rather than Bearer.
func (i *TokenIssuer) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verify(i.auth, tokenFromJWTHeader)
}

// Authenticator rejects requests whose context holds no valid token
func (i *TokenIssuer) Authenticator() func(http.Handler) http.Handler {
	return jwtauth.Authenticator(i.auth)
}

func tokenFromJWTHeader(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "JWT ") {
		return strings.TrimPrefix(header, "JWT ")
	}
	return ""
}
