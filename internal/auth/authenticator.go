// Package auth resolves bearer tokens to caller identities.
package auth

import (
	"errors"
	"strings"
)

var (
	ErrNotConfigured = errors.New("authentication not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
}

// TokenVerifier validates externally issued tokens
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// Authenticator tries the external verifier first and falls back to
// HMAC tokens when a secret is set.
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

// NewAuthenticator accepts a nil verifier or an empty secret, not both
func NewAuthenticator(verifier TokenVerifier, secret string) *Authenticator {
	return &Authenticator{verifier: verifier, secret: secret}
}

// Configured reports whether any token can be accepted
func (a *Authenticator) Configured() bool {
	return a != nil && (a.verifier != nil || a.secret != "")
}

// Authenticate resolves a raw token
func (a *Authenticator) Authenticate(tokenString string) (*Identity, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		if id, err := a.verifier.Verify(tokenString); err == nil {
			return id, nil
		}
	}

	if a.secret != "" {
		claims, err := ValidateLegacyToken(tokenString, a.secret)
		if err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
		}
	}

	return nil, ErrInvalidToken
}

// BearerToken extracts the token of an Authorization header
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
