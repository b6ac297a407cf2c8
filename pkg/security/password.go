package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Password hashing uses argon2id with heavier parameters than the OTP path;
// passwords are long-lived credentials.
const (
	passwordArgonMemory = 64 * 1024
	passwordArgonTime   = 3
	passwordArgonLanes  = 2
	passwordSaltLen     = 16
	passwordKeyLen      = 32
)

// ErrInvalidPasswordHash signals a malformed stored password hash.
var ErrInvalidPasswordHash = fmt.Errorf("invalid password hash")

// HashPassword returns the argon2id hash string for a password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	salt := make([]byte, passwordSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, passwordArgonTime, passwordArgonMemory, passwordArgonLanes, passwordKeyLen)
	return fmt.Sprintf("%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches the stored hash, in
// constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, ErrInvalidPasswordHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, ErrInvalidPasswordHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, ErrInvalidPasswordHash
	}
	computed := argon2.IDKey([]byte(password), salt, passwordArgonTime, passwordArgonMemory, passwordArgonLanes, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}
