// Package auth implements the project API key scheme: issuance,
// format helpers, fail-closed validation, and soft-delete revocation.
//
// A key looks like
//
//	ph_00000042_AbCdEfGhIjKlMnOpQrStUvWx
//	└┬┘└───┬──┘ └──────────┬──────────┘
//	literal project-id      24-char secret
//
// Only the SHA-256 digest of the full key is ever persisted. The prefix
// ("ph_" + 8 digits) is kept alongside for routing and rate limiting.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
)

const (
	// KeyPrefix starts every issued key.
	KeyPrefix = "ph_"

	// projectDigits is the zero-padded width of the project ID segment.
	projectDigits = 8

	// PrefixLen covers the literal plus the project digits ("ph_00000042").
	PrefixLen = len(KeyPrefix) + projectDigits

	// secretEntropyBytes of crypto randomness per key. 18 bytes render to
	// exactly 24 base64url characters.
	secretEntropyBytes = 18
)

var keyPattern = regexp.MustCompile(`^ph_[0-9]{8}_[A-Za-z0-9_-]{24}$`)

// IsValidKeyFormat reports whether key has the exact issued shape:
// "ph_" + 8 digits + "_" + 24 URL-safe secret characters.
func IsValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// HashKey returns the SHA-256 digest of the full key as 64 lowercase hex
// characters — the only form that is ever written to storage or compared
// against it.
func HashKey(key string) string {
	digest := sha256.Sum256([]byte(key))
	return hex.EncodeToString(digest[:])
}

// ExtractKeyPrefix returns the routing prefix ("ph_" + 8 digits) of a key.
// ok is false on anything malformed; the function never panics and is
// cheap enough to run before any storage lookup.
func ExtractKeyPrefix(key string) (string, bool) {
	if len(key) < PrefixLen || key[:len(KeyPrefix)] != KeyPrefix {
		return "", false
	}
	for i := len(KeyPrefix); i < PrefixLen; i++ {
		if key[i] < '0' || key[i] > '9' {
			return "", false
		}
	}
	return key[:PrefixLen], true
}

// ExtractProjectID parses the project ID embedded in a key. Leading zeros
// are insignificant: "ph_00000042_…" yields 42. ok is false on malformed
// input; the function never panics.
func ExtractProjectID(key string) (int64, bool) {
	prefix, ok := ExtractKeyPrefix(key)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(prefix[len(KeyPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// FormatKey assembles a full key from a project ID and secret segment.
func FormatKey(projectID int64, secret string) string {
	return fmt.Sprintf("%s%0*d_%s", KeyPrefix, projectDigits, projectID, secret)
}

// newSecret draws secretEntropyBytes of crypto-secure randomness and
// renders them in the base64url alphabet ([A-Za-z0-9_-]).
func newSecret() (string, error) {
	raw := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
