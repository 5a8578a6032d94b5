package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix is the issuance prefix for client-facing API keys. Tokens
// without it are rejected before any cache or store lookup.
const KeyPrefix = "zpg_"

// rawKeyLen is the full length of an issued key: prefix + 64 hex chars.
const rawKeyLen = len(KeyPrefix) + 64

// GenerateKey creates a new raw API key. The raw key is shown to the caller
// once; only its hash and display prefix are ever persisted.
func GenerateKey() (raw, hash, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate random key: %w", err)
	}
	raw = KeyPrefix + hex.EncodeToString(buf)
	return raw, HashKey(raw), raw[:len(KeyPrefix)+8], nil
}

// HashKey returns the hex-encoded SHA-256 hash of a raw API key.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// ValidKeyFormat reports whether token looks like an issued key: correct
// prefix, correct length, hex body.
func ValidKeyFormat(token string) bool {
	if len(token) != rawKeyLen || !strings.HasPrefix(token, KeyPrefix) {
		return false
	}
	_, err := hex.DecodeString(token[len(KeyPrefix):])
	return err == nil
}
