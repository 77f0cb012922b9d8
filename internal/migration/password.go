package migration

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Parameters of the throwaway password hashes given to migrated accounts.
// Leporid verifies with argon2i; the secret is random and never stored, so
// these accounts can only sign in through a third-party binding or a reset.
const (
	argonTime      = 3
	argonMemoryKiB = 64 * 1024
	argonThreads   = 4
	argonKeyLen    = 32
	argonSaltLen   = 16
	argonSecretLen = 32
)

// GeneratePasswordHash returns an encoded argon2i hash of a random secret
func GeneratePasswordHash() (string, error) {
	secret := make([]byte, argonSecretLen)
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("read random secret: %w", err)
	}
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read random salt: %w", err)
	}

	key := argon2.Key(secret, salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2i$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}
