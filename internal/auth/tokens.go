// Package auth implements the login/session gate: password verification,
// HMAC-signed session tokens, IP whitelisting, and per-action permission
// checks.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the custom JWT payload issued on successful login.
type Claims struct {
	ProfileID        string `json:"profile_id"`
	ProfileName      string `json:"profile_name"`
	ClientFingerprint string `json:"client_fingerprint"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens with a single HMAC secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds a TokenIssuer. An empty secret is rejected: tokens
// signed with an empty key would be forgeable by anyone.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: refusing to start with an empty secret key")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue mints a signed token for a successfully authenticated profile.
func (i *TokenIssuer) Issue(profileID, profileName, clientFingerprint string) (string, error) {
	claims := Claims{
		ProfileID:         profileID,
		ProfileName:       profileName,
		ClientFingerprint: clientFingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates a token, returning its claims.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: token failed validation")
	}
	return claims, nil
}

// HashPassword returns the hex-encoded sha256 digest of a password, for
// storage and later constant-time comparison.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// ComparePassword checks a plaintext password against a stored hash in
// constant time, so failed attempts can't be timed to learn the hash.
func ComparePassword(password, storedHash string) bool {
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
