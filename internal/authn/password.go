// Package authn implements the authentication engine (C4): password and
// MFA verification, access/refresh token issuance and validation, and
// API-token parsing, per spec section 4.2.
package authn

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2Params mirrors the OWASP-recommended baseline; every hash in this
// process (user passwords, refresh token secrets, API token secrets) uses
// the same parameters so one verify path covers all three.
type argon2Params struct {
	memoryKiB   uint32
	iterations  uint32
	parallelism uint8
	saltLen     uint32
	keyLen      uint32
}

var defaultArgon2Params = argon2Params{
	memoryKiB:   64 * 1024,
	iterations:  3,
	parallelism: 2,
	saltLen:     16,
	keyLen:      32,
}

// Hasher applies the process-wide pepper before hashing, so a leaked DB
// dump alone never yields crackable hashes.
type Hasher struct {
	pepper string
	params argon2Params
}

func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: pepper, params: defaultArgon2Params}
}

// Hash returns an encoded string carrying the salt and parameters inline,
// in the common "$argon2id$v=..$m=..,t=..,p=..$salt$hash" shape.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("authn: failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(h.pepper+secret), salt, h.params.iterations, h.params.memoryKiB, h.params.parallelism, h.params.keyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memoryKiB, h.params.iterations, h.params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded, in constant time.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("authn: malformed argon2 hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("authn: malformed argon2 version: %w", err)
	}

	var memoryKiB, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memoryKiB, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("authn: malformed argon2 params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("authn: malformed argon2 salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("authn: malformed argon2 hash payload: %w", err)
	}

	got := argon2.IDKey([]byte(h.pepper+secret), salt, iterations, memoryKiB, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
