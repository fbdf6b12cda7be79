package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// OpaqueTokenBytes is the entropy of identifiers produced by NewOpaqueToken.
const OpaqueTokenBytes = 32

// NewOpaqueToken returns OpaqueTokenBytes random bytes, base64url encoded
// without padding.
func NewOpaqueToken() (string, error) {
	var raw [OpaqueTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidOpaqueToken reports whether token has the shape NewOpaqueToken produces.
func ValidOpaqueToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(OpaqueTokenBytes) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == OpaqueTokenBytes
}

// HashToken returns the lowercase hex SHA-256 of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

var errEmptyToken = errors.New("empty token")

// StorageKey maps a presented token to the key it is persisted under.
func StorageKey(token string, hashed bool) (string, error) {
	if token == "" {
		return "", errEmptyToken
	}
	if hashed {
		return HashToken(token), nil
	}
	return token, nil
}
