package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyPassword is hashed once per Hasher and compared against when no user
// matched, so an unknown email costs the same as a wrong password.
const dummyPassword = "forensic-notes-absent-user"

// Hasher produces salted one-way hashes with bcrypt. Passwords and refresh
// tokens use separate costs.
type Hasher struct {
	passwordCost int
	tokenCost    int

	compare   func(hash, plain []byte) error
	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher creates a hasher; costs outside bcrypt's range fall back to the default
func NewHasher(passwordCost, tokenCost int) *Hasher {
	return &Hasher{
		passwordCost: clampCost(passwordCost),
		tokenCost:    clampCost(tokenCost),
		compare:      bcrypt.CompareHashAndPassword,
	}
}

func clampCost(c int) int {
	if c < bcrypt.MinCost || c > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return c
}

// HashPassword returns the bcrypt hash of a plaintext password
func (h *Hasher) HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// ComparePassword safely compares a bcrypt hash and a plaintext password
func (h *Hasher) ComparePassword(hash, plain string) bool {
	return h.compare([]byte(hash), []byte(plain)) == nil
}

// CompareAbsent runs a password compare of the configured cost against a
// fixed hash and always reports a mismatch
func (h *Hasher) CompareAbsent(plain string) bool {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(dummyPassword), h.passwordCost)
	})
	_ = h.compare(h.dummyHash, []byte(plain))
	return false
}

// HashToken returns the bcrypt hash of a refresh token. bcrypt only reads the
// first 72 bytes of its input and JWTs of the same user share a long prefix,
// so the token is reduced to its SHA-256 hex digest first.
func (h *Hasher) HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(tokenDigest(token)), h.tokenCost)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}
	return string(b), nil
}

// CompareToken reports whether token matches a hash produced by HashToken.
// A malformed stored hash is returned as an error rather than a mismatch.
func (h *Hasher) CompareToken(hash, token string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(tokenDigest(token)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare refresh token: %w", err)
	}
}

// tokenDigest returns SHA256 hex of the token
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
