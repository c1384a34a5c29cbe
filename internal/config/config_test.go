package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecureCookies_DisabledInTestingMode(t *testing.T) {
	cfg := DefaultConfig()
	require.True(t, cfg.SecureCookies())

	cfg.Mode = ModeTesting
	require.False(t, cfg.SecureCookies())
}

func TestResolvedBaseURL_TrimsTrailingSlash(t *testing.T) {
	cfg := Config{BaseURL: " https://journal.example.com/ "}
	require.Equal(t, "https://journal.example.com", cfg.ResolvedBaseURL())
}

func TestResolvedDefaultLocation(t *testing.T) {
	var cfg Config
	require.Equal(t, DefaultLocation, cfg.ResolvedDefaultLocation())

	cfg.DefaultLocation = "[1.0,2.0]"
	require.Equal(t, "[1.0,2.0]", cfg.ResolvedDefaultLocation())
}

func TestDecodeSessionKey_HexAndBase64(t *testing.T) {
	hexKey := "00112233445566778899aabbccddeeff"
	key, err := DecodeSessionKey(hexKey)
	require.NoError(t, err)
	require.Len(t, key, 16)

	raw := []byte("0123456789abcdef0123456789abcdef")
	b64 := base64.StdEncoding.EncodeToString(raw)
	key, err = DecodeSessionKey(b64)
	require.NoError(t, err)
	require.Equal(t, raw, key)

	_, err = DecodeSessionKey("not-a-key")
	require.Error(t, err)
}

func TestSessionSigningKey(t *testing.T) {
	cfg := Config{SessionKey: "00112233445566778899aabbccddeeff"}
	first, ephemeral, err := cfg.SessionSigningKey()
	require.NoError(t, err)
	require.False(t, ephemeral)
	require.Len(t, first, 32)

	second, _, err := cfg.SessionSigningKey()
	require.NoError(t, err)
	require.Equal(t, first, second, "derived key must be stable")

	cfg.SessionKey = ""
	random, ephemeral, err := cfg.SessionSigningKey()
	require.NoError(t, err)
	require.True(t, ephemeral)
	require.Len(t, random, 32)
}
