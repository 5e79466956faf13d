package workers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"os"
)

// TokenEnv is the environment variable holding the shared worker token.
const TokenEnv = "AGRIDX_WORKER_TOKEN"

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// Authenticator checks the shared token carried by requests. A zero-value
// token disables authentication.
type Authenticator struct {
	token string
}

// NewAuthenticator creates an Authenticator for token.
func NewAuthenticator(token string) *Authenticator {
	return &Authenticator{token: token}
}

// NewAuthenticatorFromEnv reads the token from AGRIDX_WORKER_TOKEN.
func NewAuthenticatorFromEnv() *Authenticator {
	return NewAuthenticator(os.Getenv(TokenEnv))
}

// Enabled reports whether requests must carry a token.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.token != ""
}

// Validate compares provided against the configured token in constant time.
func (a *Authenticator) Validate(provided string) error {
	if !a.Enabled() {
		return nil
	}
	if provided == "" {
		return ErrAuthRequired
	}
	if subtle.ConstantTimeCompare([]byte(a.token), []byte(provided)) != 1 {
		return ErrAuthTokenMismatch
	}
	return nil
}

// GenerateToken returns a random 256-bit hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
