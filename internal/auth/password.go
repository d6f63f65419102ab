package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen = 16
	keyLen  = 32

	// DefaultIterations is the current PBKDF2 work factor. Raise it over time;
	// a Hasher's count applies to both derivation and verification.
	DefaultIterations = 100_000
)

// Hasher derives and verifies password hashes stored as salt||key.
type Hasher struct {
	Iterations int
}

func NewHasher() *Hasher { return &Hasher{Iterations: DefaultIterations} }

// Hash returns a fresh salt||derived-key blob for the password.
func (h *Hasher) Hash(password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	dk := pbkdf2.Key([]byte(password), salt, h.iterations(), keyLen, sha256.New)
	blob := make([]byte, 0, saltLen+keyLen)
	blob = append(blob, salt...)
	blob = append(blob, dk...)
	return blob, nil
}

// Verify re-derives with the stored salt and compares in constant time.
// A blob of the wrong length never matches and never panics.
func (h *Hasher) Verify(password string, blob []byte) bool {
	if len(blob) != saltLen+keyLen {
		return false
	}
	dk := pbkdf2.Key([]byte(password), blob[:saltLen], h.iterations(), keyLen, sha256.New)
	return subtle.ConstantTimeCompare(dk, blob[saltLen:]) == 1
}

func (h *Hasher) iterations() int {
	if h.Iterations > 0 {
		return h.Iterations
	}
	return DefaultIterations
}
