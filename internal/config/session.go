package config

import (
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeSessionKey supports both hex and base64 encoded keys.
func DecodeSessionKey(raw string) ([]byte, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, fmt.Errorf("session key is empty")
	}
	if b, err := hex.DecodeString(value); err == nil && validKeyLen(len(b)) {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && validKeyLen(len(b)) {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(value); err == nil && validKeyLen(len(b)) {
		return b, nil
	}
	return nil, fmt.Errorf("key must be hex or base64 encoded 16/24/32-byte value")
}

func validKeyLen(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// SessionSigningKey returns the HMAC key used to sign session cookies.
// A domain-specific 32-byte key is derived from SessionKey via HKDF-SHA256.
// When SessionKey is empty a random key is returned and ephemeral is true;
// sessions then do not survive a restart.
func (c *Config) SessionSigningKey() (key []byte, ephemeral bool, err error) {
	if strings.TrimSpace(c.SessionKey) == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, false, fmt.Errorf("generate session key: %w", err)
		}
		return key, true, nil
	}
	raw, err := DecodeSessionKey(c.SessionKey)
	if err != nil {
		return nil, false, fmt.Errorf("invalid session key: %w", err)
	}
	key, err = hkdf.Key(sha256.New, raw, nil, "memory-journal-session-cookies", 32)
	if err != nil {
		return nil, false, fmt.Errorf("HKDF derivation failed: %w", err)
	}
	return key, false, nil
}
