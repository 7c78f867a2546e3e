// Package auth verifies access tokens against a bcrypt hash. The
// plaintext token never touches the config file; only its hash does.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashToken returns the bcrypt hash of a token, suitable for the
// auth_token_hash config setting.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// Verifier checks presented tokens against a configured hash. A nil
// Verifier allows everything, so callers can hold one unconditionally.
type Verifier struct {
	hash []byte
}

// NewVerifier returns a verifier for the given bcrypt hash, or nil when
// the hash is empty and no auth is configured.
func NewVerifier(hash string) *Verifier {
	if hash == "" {
		return nil
	}
	return &Verifier{hash: []byte(hash)}
}

// Allow reports whether the token matches the configured hash.
func (v *Verifier) Allow(token string) bool {
	if v == nil {
		return true
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(token)) == nil
}

// AllowRequest extracts the token from an HTTP request and checks it.
// Accepted carriers are the Authorization bearer header and, for
// browser contexts that cannot set headers, a token query parameter.
func (v *Verifier) AllowRequest(r *http.Request) bool {
	if v == nil {
		return true
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return v.Allow(token)
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return v.Allow(token)
	}
	return false
}
