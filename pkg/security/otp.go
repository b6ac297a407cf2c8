package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
)

// OTP codes are low entropy, so they are stored argon2id-hashed with modest
// fixed parameters rather than plaintext.
const (
	otpDigits      = 6
	otpArgonMemory = 32 * 1024
	otpArgonTime   = 1
	otpArgonLanes  = 1
	otpSaltLen     = 16
	otpKeyLen      = 32
)

// ErrInvalidOTPHash signals a malformed stored OTP hash.
var ErrInvalidOTPHash = fmt.Errorf("invalid otp hash")

// GenerateOTP returns a uniformly random 6-digit numeric code.
func GenerateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashOTP returns the argon2id hash string for a code.
func HashOTP(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("otp code cannot be empty")
	}
	salt := make([]byte, otpSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(code), salt, otpArgonTime, otpArgonMemory, otpArgonLanes, otpKeyLen)
	return fmt.Sprintf("%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyOTP reports whether code matches the stored hash, in constant time.
func VerifyOTP(code, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, ErrInvalidOTPHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, ErrInvalidOTPHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, ErrInvalidOTPHash
	}
	computed := argon2.IDKey([]byte(code), salt, otpArgonTime, otpArgonMemory, otpArgonLanes, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}
