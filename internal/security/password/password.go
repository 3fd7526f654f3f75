// Package password provides the one-way credential hashers used for user passwords.
//
// Callers depend only on Hasher; the digest format identifies its algorithm,
// so a Multi hasher can verify digests produced by either implementation.
package password

import (
	"errors"
	"fmt"
	"strings"
)

// Public, stable errors for callers.
var (
	ErrEmptyPassword = errors.New("password is empty")
	ErrInvalidHash   = errors.New("invalid password hash")
)

// Hasher hashes secrets and verifies them against stored digests.
// Verify returns (false, nil) on mismatch and an error only for malformed digests.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) (bool, error)
}

// Algorithm names accepted by New.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Config selects and tunes the hasher.
type Config struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2idParams
}

// New returns a hasher that hashes with cfg.Algorithm and verifies digests of any supported algorithm.
func New(cfg Config) (Hasher, error) {
	b := NewBcrypt(cfg.BcryptCost)
	a := NewArgon2id(cfg.Argon2)

	switch strings.ToLower(strings.TrimSpace(cfg.Algorithm)) {
	case "", AlgorithmBcrypt:
		return Multi{Primary: b, Fallbacks: []Hasher{a}}, nil
	case AlgorithmArgon2id:
		return Multi{Primary: a, Fallbacks: []Hasher{b}}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", cfg.Algorithm)
	}
}

// Multi hashes with Primary and verifies with whichever hasher recognizes the digest.
type Multi struct {
	Primary   Hasher
	Fallbacks []Hasher
}

func (m Multi) Hash(secret string) (string, error) {
	return m.Primary.Hash(secret)
}

func (m Multi) Verify(secret, digest string) (bool, error) {
	ok, err := m.Primary.Verify(secret, digest)
	if !errors.Is(err, ErrInvalidHash) {
		return ok, err
	}
	for _, h := range m.Fallbacks {
		ok, err = h.Verify(secret, digest)
		if !errors.Is(err, ErrInvalidHash) {
			return ok, err
		}
	}
	return false, ErrInvalidHash
}
