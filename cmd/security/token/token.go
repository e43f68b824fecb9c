package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// MinHMACKeyBytes is the smallest accepted refresh-token HMAC key.
const MinHMACKeyBytes = 32

// Hasher turns refresh tokens into the 64-char hex digests kept in the record store.
type Hasher struct {
	key []byte
}

// NewHasher returns an HMAC-SHA256 hasher keyed with key (trimmed).
func NewHasher(key string) (Hasher, error) {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return Hasher{}, ErrHMACKeyMissing
	}
	if len(raw) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{key: []byte(raw)}, nil
}

// Hash returns the storage digest of a refresh token.
// A zero Hasher falls back to plain SHA-256, which tests rely on.
func (h Hasher) Hash(token string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(token)
	}
	return HashHMACSHA256Hex(token, h.key)
}

// Matches reports whether token hashes to stored, in constant time.
func (h Hasher) Matches(stored, token string) bool {
	return EqualHex64(stored, h.Hash(token))
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// EqualHex64 compares two 64-char hex digests in constant time.
// Anything of another length never matches.
func EqualHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
