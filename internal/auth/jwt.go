package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject")
)

// Claims are the identity claims read from an access token. Identity
// providers put the user in "sub"; tokens minted by this service also carry
// it as "uid".
type Claims struct {
	UserID string `json:"uid,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user identifier carried by the token
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Verifier validates access tokens
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// HMACVerifier verifies HS256 tokens signed with a shared secret
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the shared secret
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify parses and validates token
func (v *HMACVerifier) Verify(token string) (*Claims, error) {
	return parseClaims(token, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.SigningMethodHS256.Alg())
}

// JWKSVerifier verifies tokens against an identity provider's published
// key set, refreshed in the background.
type JWKSVerifier struct {
	jwks *keyfunc.JWKS
}

// NewJWKSVerifier fetches the key set at url. onRefreshError is called when
// a background refresh fails and may be nil.
func NewJWKSVerifier(url string, refresh time.Duration, onRefreshError func(error)) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:     refresh,
		RefreshRateLimit:    time.Minute,
		RefreshTimeout:      10 * time.Second,
		RefreshUnknownKID:   true,
		RefreshErrorHandler: onRefreshError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}
	return &JWKSVerifier{jwks: jwks}, nil
}

// Verify parses and validates token
func (v *JWKSVerifier) Verify(token string) (*Claims, error) {
	return parseClaims(token, v.jwks.Keyfunc, "RS256", "ES256")
}

// Close stops the background refresh
func (v *JWKSVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func parseClaims(tokenStr string, keyFunc jwt.Keyfunc, methods ...string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, keyFunc, jwt.WithValidMethods(methods))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	if c.Identity() == "" {
		return nil, ErrMissingSubject
	}
	return c, nil
}

// MintToken signs an HS256 access token for userID. It is used by local
// tooling and tests; production tokens come from the identity provider.
func MintToken(userID, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	return token.SignedString([]byte(secret))
}
