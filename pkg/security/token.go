package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ErrTokenFormat signals a session token that does not match the canonical
// random-UUID format. Callers must treat this as a security event, not a
// lookup miss.
var ErrTokenFormat = fmt.Errorf("token format mismatch")

// ValidateSessionToken checks that raw is a canonical 36-character UUIDv4.
// Any other shape (urn form, braces, wrong version) is rejected so guessed
// or truncated identifiers never reach the session store.
func ValidateSessionToken(raw string) (uuid.UUID, error) {
	if len(raw) != 36 {
		return uuid.Nil, ErrTokenFormat
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrTokenFormat
	}
	if parsed.Version() != 4 || parsed.Variant() != uuid.RFC4122 {
		return uuid.Nil, ErrTokenFormat
	}
	return parsed, nil
}

// MaskToken redacts token material for logs, keeping a short prefix and
// suffix for correlation.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

// SignHMACSHA256 returns hex(HMAC-SHA256(secret, message)).
func SignHMACSHA256(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 compares the expected hex signature against the one
// computed over message, in constant time.
func VerifyHMACSHA256(secret, message, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hmac.Equal(mac.Sum(nil), expected)
}
